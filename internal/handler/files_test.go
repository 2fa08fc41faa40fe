package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tierhost/tierhost/internal/model"
	"github.com/tierhost/tierhost/internal/service/servicetest"
)

func TestFileHandler_Unauthenticated(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/images/", nil),
		httptest.NewRequest(http.MethodGet, "/images/x/", nil),
		httptest.NewRequest(http.MethodPost, "/images/", nil),
		httptest.NewRequest(http.MethodDelete, "/images/x/", nil),
	} {
		assertError(t, env.do(t, nil, req), http.StatusUnauthorized, MsgUnauthenticated)
	}
}

func TestFileHandler_CreateShapedByTier(t *testing.T) {
	t.Parallel()

	base := []string{"id", "created_by", "created_by_id", "name", "file_format", "date_started", "last_edited", "image_url"}

	tests := []struct {
		tier    model.Tier
		want    []string
		notWant []string
	}{
		{model.TierBasic, append(base, "image_thumbnail200"), []string{"image_thumbnail400"}},
		{model.TierPremium, append(base, "image_thumbnail200", "image_thumbnail400"), nil},
		{model.TierEnterprise, append(base, "image_thumbnail200", "image_thumbnail400"), nil},
	}

	for _, test := range tests {
		t.Run(string(test.tier), func(t *testing.T) {
			env := newTestEnv(t, 0)
			p := env.user("u1", test.tier)

			body, ct := multipartBody(t, uploadField, "cat.png", "image/png", servicetest.PNG(t, 60, 30), nil)
			req := httptest.NewRequest(http.MethodPost, "/images/", body)
			req.Header.Set("Content-Type", ct)

			rec := env.do(t, p, req)
			if rec.Code != http.StatusCreated {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
			}
			got := decodeMap(t, rec)

			if len(got) != len(test.want) {
				t.Errorf("got %d fields, want %d: %v", len(got), len(test.want), got)
			}
			for _, k := range test.want {
				if _, ok := got[k]; !ok {
					t.Errorf("missing field %q", k)
				}
			}
			for _, k := range test.notWant {
				if _, ok := got[k]; ok {
					t.Errorf("unexpected field %q", k)
				}
			}

			if got["name"] != "cat.png" || got["file_format"] != "PNG" || got["created_by"] != "user-u1" || got["created_by_id"] != "u1" {
				t.Errorf("unexpected body: %v", got)
			}
			if got["date_started"] != "2026-03-01" || got["last_edited"] != "2026-03-01" {
				t.Errorf("dates = %v / %v", got["date_started"], got["last_edited"])
			}
			thumb, _ := got["image_thumbnail200"].(string)
			if !strings.HasPrefix(thumb, "http://example.com/media/derived/") {
				t.Errorf("image_thumbnail200 = %q", thumb)
			}
		})
	}
}

func TestFileHandler_CreateRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		field       string
		filename    string
		contentType string
		status      int
		message     string
	}{
		{"gif", uploadField, "a.gif", "image/gif", http.StatusBadRequest, MsgInvalidFormat},
		{"pdf", uploadField, "a.pdf", "application/pdf", http.StatusBadRequest, MsgInvalidFormat},
		{"missing_part", "", "", "", http.StatusBadRequest, MsgMissingUpload},
		{"wrong_field", "file", "a.png", "image/png", http.StatusBadRequest, MsgMissingUpload},
		{"long_name", uploadField, strings.Repeat("x", 47) + ".png", "image/png", http.StatusBadRequest, MsgNameTooLong},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			env := newTestEnv(t, 0)
			p := env.user("u1", model.TierBasic)

			body, ct := multipartBody(t, test.field, test.filename, test.contentType, servicetest.PNG(t, 4, 4), nil)
			req := httptest.NewRequest(http.MethodPost, "/images/", body)
			req.Header.Set("Content-Type", ct)

			assertError(t, env.do(t, p, req), test.status, test.message)
			if n := env.store.FileCount(); n != 0 {
				t.Errorf("rejected upload persisted %d files", n)
			}
		})
	}
}

func TestFileHandler_CreateNotMultipart(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	req := httptest.NewRequest(http.MethodPost, "/images/", strings.NewReader(`{"name":"x"}`))
	req.Header.Set("Content-Type", "application/json")

	assertError(t, env.do(t, env.user("u1", model.TierBasic), req), http.StatusBadRequest, MsgMissingUpload)
}

func TestFileHandler_CreateTooLarge(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 512)
	body, ct := multipartBody(t, uploadField, "big.png", "image/png", make([]byte, 4096), nil)
	req := httptest.NewRequest(http.MethodPost, "/images/", body)
	req.Header.Set("Content-Type", ct)

	assertError(t, env.do(t, env.user("u1", model.TierBasic), req), http.StatusRequestEntityTooLarge, MsgUploadTooLarge)
}

func TestFileHandler_ListAndRetrieveAreOwnerScoped(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	alice := env.user("alice", model.TierBasic)
	bob := env.user("bob", model.TierBasic)

	aliceID := env.upload(t, alice, "a.png")
	env.upload(t, bob, "b.png")

	rec := env.do(t, bob, httptest.NewRequest(http.MethodGet, "/images/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list []map[string]any
	decodeJSON(t, rec, &list)
	if len(list) != 1 || list[0]["created_by_id"] != "bob" {
		t.Errorf("bob's list = %v", list)
	}

	assertError(t, env.do(t, bob, httptest.NewRequest(http.MethodGet, "/images/"+aliceID+"/", nil)), http.StatusNotFound, MsgNotFound)

	rec = env.do(t, alice, httptest.NewRequest(http.MethodGet, "/images/"+aliceID+"/", nil))
	if rec.Code != http.StatusOK || decodeMap(t, rec)["id"] != aliceID {
		t.Errorf("owner retrieve failed: %d", rec.Code)
	}
}

func TestFileHandler_ListEmpty(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	rec := env.do(t, env.user("u1", model.TierBasic), httptest.NewRequest(http.MethodGet, "/images/", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty list = %d %q", rec.Code, rec.Body)
	}
}

func TestFileHandler_Update(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	p := env.user("u1", model.TierPremium)
	id := env.upload(t, p, "old.png")

	body, ct := multipartBody(t, uploadField, "new.jpg", "image/jpeg", servicetest.JPEG(t, 30, 30), nil)
	req := httptest.NewRequest(http.MethodPut, "/images/"+id+"/", body)
	req.Header.Set("Content-Type", ct)

	rec := env.do(t, p, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	got := decodeMap(t, rec)
	if got["file_format"] != "JPEG" || got["name"] != "new.jpg" || got["id"] != id {
		t.Errorf("updated = %v", got)
	}

	// Name-only update.
	body, ct = multipartBody(t, "", "", "", nil, map[string]string{"name": "renamed"})
	req = httptest.NewRequest(http.MethodPut, "/images/"+id+"/", body)
	req.Header.Set("Content-Type", ct)
	rec = env.do(t, p, req)
	if rec.Code != http.StatusOK || decodeMap(t, rec)["name"] != "renamed" {
		t.Errorf("rename failed: %d", rec.Code)
	}

	// Unknown id is reported before upload validation.
	body, ct = multipartBody(t, uploadField, "x.gif", "image/gif", []byte("GIF89a"), nil)
	req = httptest.NewRequest(http.MethodPut, "/images/missing/", body)
	req.Header.Set("Content-Type", ct)
	assertError(t, env.do(t, p, req), http.StatusNotFound, MsgNotFound)
}

func TestFileHandler_Delete(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	p := env.user("u1", model.TierBasic)
	id := env.upload(t, p, "a.png")

	rec := env.do(t, p, httptest.NewRequest(http.MethodDelete, "/images/"+id+"/", nil))
	if rec.Code != http.StatusOK || decodeMap(t, rec)["result"] != "Image deleted" {
		t.Fatalf("delete = %d %s", rec.Code, rec.Body)
	}

	assertError(t, env.do(t, p, httptest.NewRequest(http.MethodGet, "/images/"+id+"/", nil)), http.StatusNotFound, MsgNotFound)
	assertError(t, env.do(t, p, httptest.NewRequest(http.MethodDelete, "/images/"+id+"/", nil)), http.StatusNotFound, MsgNotFound)
}
