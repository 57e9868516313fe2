package objectstore

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/snd-ksa/docmigrate/internal/httpclient"
)

const legacyBase = "https://supabasekong.example.com"

func newLegacyTestClient(t *testing.T) (*LegacyStoreClient, *httpmock.MockTransport) {
	t.Helper()

	transport := httpmock.NewMockTransport()
	hc := httpclient.New(&httpclient.Config{Transport: transport})
	t.Cleanup(hc.Close)

	client, err := NewLegacyStoreClient(LegacyStoreConfig{
		BaseURL:    legacyBase + "/",
		ServiceKey: "service-key",
	}, hc, rate.NewLimiter(rate.Inf, 1))
	require.NoError(t, err)

	return client, transport
}

func TestNewLegacyStoreClient_InvalidURL(t *testing.T) {
	_, err := NewLegacyStoreClient(LegacyStoreConfig{BaseURL: ""}, nil, nil)
	require.Error(t, err)

	_, err = NewLegacyStoreClient(LegacyStoreConfig{BaseURL: "not a url"}, nil, nil)
	require.Error(t, err)
}

func TestLegacyStoreClient_ObjectURL(t *testing.T) {
	client, _ := newLegacyTestClient(t)

	assert.Equal(t,
		legacyBase+"/storage/v1/object/employee-documents/42/passport%20scan.pdf",
		client.ObjectURL("employee-documents", "42/passport scan.pdf"))
}

func TestLegacyStoreClient_Get(t *testing.T) {
	client, transport := newLegacyTestClient(t)

	transport.RegisterResponder(http.MethodGet, legacyBase+"/storage/v1/object/employee-documents/42/photo.jpg",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "service-key", req.Header.Get("apikey"))
			assert.Equal(t, "Bearer service-key", req.Header.Get("Authorization"))
			resp := httpmock.NewStringResponse(http.StatusOK, "jpeg-bytes")
			resp.Header.Set("Content-Type", "image/jpeg")
			return resp, nil
		})

	obj, err := client.Get(t.Context(), "employee-documents", "42/photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), obj.Data)
	assert.Equal(t, "image/jpeg", obj.ContentType)
}

func TestLegacyStoreClient_GetNotFound(t *testing.T) {
	client, transport := newLegacyTestClient(t)

	transport.RegisterResponder(http.MethodGet, legacyBase+"/storage/v1/object/general/missing.pdf",
		httpmock.NewStringResponder(http.StatusNotFound, `{"message":"Object not found"}`))
	transport.RegisterResponder(http.MethodGet, legacyBase+"/storage/v1/object/general/odd.pdf",
		httpmock.NewStringResponder(http.StatusBadRequest, `{"statusCode":"404","error":"not_found"}`))

	_, err := client.Get(t.Context(), "general", "missing.pdf")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsTransient(err))

	_, err = client.Get(t.Context(), "general", "odd.pdf")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestLegacyStoreClient_GetServerErrorIsTransient(t *testing.T) {
	client, transport := newLegacyTestClient(t)

	transport.RegisterResponder(http.MethodGet, legacyBase+"/storage/v1/object/general/a.pdf",
		httpmock.NewStringResponder(http.StatusBadGateway, "upstream down"))

	_, err := client.Get(t.Context(), "general", "a.pdf")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.True(t, IsTransient(err))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestLegacyStoreClient_Stat(t *testing.T) {
	client, transport := newLegacyTestClient(t)

	transport.RegisterResponder(http.MethodHead, legacyBase+"/storage/v1/object/general/a.pdf",
		func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode:    http.StatusOK,
				ContentLength: 12,
				Header: http.Header{
					"Etag":          []string{`"abc"`},
					"Content-Type":  []string{"application/pdf"},
					"Last-Modified": []string{"Mon, 02 Jan 2006 15:04:05 GMT"},
				},
				Body:    http.NoBody,
				Request: req,
			}, nil
		})

	info, err := client.Stat(t.Context(), "general", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(12), info.Size)
	assert.Equal(t, `"abc"`, info.ETag)
	assert.Equal(t, "application/pdf", info.ContentType)
	assert.Equal(t, 2006, info.LastModified.Year())

	exists, err := client.Exists(t.Context(), "general", "a.pdf")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLegacyStoreClient_ExistsMissing(t *testing.T) {
	client, transport := newLegacyTestClient(t)

	transport.RegisterResponder(http.MethodHead, legacyBase+"/storage/v1/object/general/a.pdf",
		httpmock.NewStringResponder(http.StatusNotFound, ""))

	exists, err := client.Exists(t.Context(), "general", "a.pdf")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLegacyStoreClient_Put(t *testing.T) {
	client, transport := newLegacyTestClient(t)

	transport.RegisterResponder(http.MethodPost, legacyBase+"/storage/v1/object/general/report.pdf",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "true", req.Header.Get("x-upsert"))
			assert.Equal(t, "application/pdf", req.Header.Get("Content-Type"))
			body, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			assert.Equal(t, "pdf-bytes", string(body))
			return httpmock.NewStringResponse(http.StatusOK, `{"Key":"general/report.pdf"}`), nil
		})

	info, err := client.Put(t.Context(), "general", "report.pdf", []byte("pdf-bytes"), "")
	require.NoError(t, err)
	assert.Equal(t, int64(9), info.Size)
	assert.Equal(t, "application/pdf", info.ContentType)
}

func TestLegacyStoreClient_CopySameBucket(t *testing.T) {
	client, transport := newLegacyTestClient(t)

	transport.RegisterResponder(http.MethodPost, legacyBase+"/storage/v1/object/copy",
		func(req *http.Request) (*http.Response, error) {
			var payload legacyCopyRequest
			require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
			assert.Equal(t, legacyCopyRequest{BucketID: "general", SourceKey: "a.pdf", DestinationKey: "b.pdf"}, payload)
			return httpmock.NewStringResponse(http.StatusOK, `{"Key":"general/b.pdf"}`), nil
		})

	require.NoError(t, client.Copy(t.Context(), "general", "a.pdf", "general", "b.pdf"))
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestLegacyStoreClient_CopyAcrossBuckets(t *testing.T) {
	client, transport := newLegacyTestClient(t)

	transport.RegisterResponder(http.MethodGet, legacyBase+"/storage/v1/object/general/a.pdf",
		httpmock.NewStringResponder(http.StatusOK, "bytes"))
	transport.RegisterResponder(http.MethodPost, legacyBase+"/storage/v1/object/employee-documents/a.pdf",
		httpmock.NewStringResponder(http.StatusOK, "{}"))

	require.NoError(t, client.Copy(t.Context(), "general", "a.pdf", "employee-documents", "a.pdf"))
	assert.Equal(t, 2, transport.GetTotalCallCount())
}

func TestLegacyStoreClient_DeleteMissingIsNoError(t *testing.T) {
	client, transport := newLegacyTestClient(t)

	transport.RegisterResponder(http.MethodDelete, legacyBase+"/storage/v1/object/general/gone.pdf",
		httpmock.NewStringResponder(http.StatusNotFound, ""))
	transport.RegisterResponder(http.MethodDelete, legacyBase+"/storage/v1/object/general/locked.pdf",
		httpmock.NewStringResponder(http.StatusForbidden, "denied"))

	require.NoError(t, client.Delete(t.Context(), "general", "gone.pdf"))

	err := client.Delete(t.Context(), "general", "locked.pdf")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestLegacyStoreClient_ListRecursesIntoFolders(t *testing.T) {
	client, transport := newLegacyTestClient(t)

	transport.RegisterResponder(http.MethodPost, legacyBase+"/storage/v1/object/list/employee-documents",
		func(req *http.Request) (*http.Response, error) {
			var payload legacyListRequest
			require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))

			var body string
			switch payload.Prefix {
			case "":
				body = `[
					{"name":"employee-42","id":null},
					{"name":"employee-7","id":null},
					{"name":"readme.txt","id":"1","metadata":{"size":3,"mimetype":"text/plain","eTag":"\"r\""}}
				]`
			case "employee-42":
				body = `[{"name":"cv.pdf","id":"2","updated_at":"2024-05-01T10:00:00Z","metadata":{"size":10,"mimetype":"application/pdf","eTag":"\"e\""}}]`
			default:
				t.Errorf("unexpected folder listed: %q", payload.Prefix)
				body = `[]`
			}
			return httpmock.NewStringResponse(http.StatusOK, body), nil
		})

	objects, err := client.List(t.Context(), "employee-documents", "employee-4")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "employee-42/cv.pdf", objects[0].Key)
	assert.Equal(t, int64(10), objects[0].Size)
	assert.Equal(t, "application/pdf", objects[0].ContentType)
	assert.Equal(t, 2024, objects[0].LastModified.Year())
}

func TestLegacyStoreClient_ListFolderPrefix(t *testing.T) {
	client, transport := newLegacyTestClient(t)

	transport.RegisterResponder(http.MethodPost, legacyBase+"/storage/v1/object/list/general",
		func(req *http.Request) (*http.Response, error) {
			var payload legacyListRequest
			require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
			assert.Equal(t, "employee-42", payload.Prefix)
			return httpmock.NewStringResponse(http.StatusOK,
				`[{"name":"cv-1700000000.pdf","id":"1","metadata":{"size":1}},{"name":"photo.jpg","id":"2","metadata":{"size":2}}]`), nil
		})

	objects, err := client.List(t.Context(), "general", "employee-42/cv")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.True(t, strings.HasSuffix(objects[0].Key, "cv-1700000000.pdf"))
}

func TestEscapeKey(t *testing.T) {
	assert.Equal(t, "a/b%20c.pdf", escapeKey("/a/b c.pdf"))
	assert.Equal(t, "employee-42/x%23y.png", escapeKey("employee-42/x#y.png"))
}
