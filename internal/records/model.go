package records

// EmployeeDocument maps the employee_documents table.
type EmployeeDocument struct {
	ID         int64   `gorm:"primaryKey"`
	EmployeeID int64   `gorm:"column:employee_id;index;not null"`
	FileName   string  `gorm:"column:file_name"`
	FilePath   *string `gorm:"column:file_path"`
}

func (EmployeeDocument) TableName() string { return string(EmployeeDocuments) }

// EquipmentDocument maps the equipment_documents table.
type EquipmentDocument struct {
	ID          int64   `gorm:"primaryKey"`
	EquipmentID int64   `gorm:"column:equipment_id;index;not null"`
	FileName    string  `gorm:"column:file_name"`
	FilePath    *string `gorm:"column:file_path"`
}

func (EquipmentDocument) TableName() string { return string(EquipmentDocuments) }

// MediaItem maps the polymorphic media table.
type MediaItem struct {
	ID        int64   `gorm:"primaryKey"`
	ModelType *string `gorm:"column:model_type;index:idx_media_model"`
	ModelID   *int64  `gorm:"column:model_id;index:idx_media_model"`
	FileName  string  `gorm:"column:file_name"`
	FilePath  *string `gorm:"column:file_path"`
}

func (MediaItem) TableName() string { return string(Media) }

// Employee carries the employee business key.
type Employee struct {
	ID         int64   `gorm:"primaryKey"`
	FileNumber *string `gorm:"column:file_number"`
}

func (Employee) TableName() string { return "employees" }

// Equipment carries the equipment business key.
type Equipment struct {
	ID         int64   `gorm:"primaryKey"`
	DoorNumber *string `gorm:"column:door_number"`
}

func (Equipment) TableName() string { return "equipment" }

// Models lists every mapped model, for schema setup in tests and tooling.
func Models() []any {
	return []any{&Employee{}, &Equipment{}, &EmployeeDocument{}, &EquipmentDocument{}, &MediaItem{}}
}

// documentRow is the common projection of the three document tables
type documentRow struct {
	ID        int64
	OwnerID   *int64
	ModelType *string
	FileName  string
	FilePath  *string
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
