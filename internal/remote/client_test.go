package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"examscan-pipeline/internal/config"
	"examscan-pipeline/internal/model"
	pkgerr "examscan-pipeline/pkg/errors"
)

func testServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(authTokenResponse{Token: "test-token", ExpiresIn: 3600})
	})
	mux.HandleFunc("/", handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.Remote = config.RemoteConfig{
		BaseURL:       srv.URL,
		AuthEndpoint:  "/auth/login",
		Username:      "svc",
		Password:      "secret",
		LookupTimeout: 5 * time.Second,
		CommitTimeout: 2 * time.Second,
	}
	return NewClient(cfg), srv
}

func TestGetStudent(t *testing.T) {
	client, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/students/12345678" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(model.StudentRecord{
			StudentID: "12345678",
			FirstName: "Ana",
			LastName:  "Reyes",
			Section:   "A-1",
			IsActive:  true,
		})
	})

	student, err := client.GetStudent(context.Background(), "12345678")
	if err != nil {
		t.Fatalf("GetStudent: %v", err)
	}
	if student.StudentID != "12345678" || !student.IsActive {
		t.Errorf("student = %+v", student)
	}
}

func TestGetStudentNotFound(t *testing.T) {
	client, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetStudent(context.Background(), "99999999")
	if !pkgerr.IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}
	if pkgerr.IsTransient(err) {
		t.Error("not-found must be a definite answer, not transient")
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		transient bool
		rejected  bool
		duplicate bool
	}{
		{"service unavailable", http.StatusServiceUnavailable, true, false, false},
		{"bad gateway", http.StatusBadGateway, true, false, false},
		{"too many requests", http.StatusTooManyRequests, true, false, false},
		{"forbidden", http.StatusForbidden, false, true, false},
		{"unprocessable", http.StatusUnprocessableEntity, false, true, false},
		{"conflict", http.StatusConflict, false, true, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})

			_, err := client.GetExam(context.Background(), "exam-1")
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := pkgerr.IsTransient(err); got != tc.transient {
				t.Errorf("IsTransient = %v, want %v", got, tc.transient)
			}
			if got := pkgerr.IsRejected(err); got != tc.rejected {
				t.Errorf("IsRejected = %v, want %v", got, tc.rejected)
			}
			if got := pkgerr.IsDuplicate(err); got != tc.duplicate {
				t.Errorf("IsDuplicate = %v, want %v", got, tc.duplicate)
			}
		})
	}
}

func TestUnauthorizedInvalidatesToken(t *testing.T) {
	var authCalls int32
	var apiCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&authCalls, 1)
		json.NewEncoder(w).Encode(authTokenResponse{Token: "tok", ExpiresIn: 3600})
	})
	mux.HandleFunc("/api/v1/exams/", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&apiCalls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(model.Exam{ID: "exam-1", Status: model.ExamStatusActive})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Remote = config.RemoteConfig{
		BaseURL:       srv.URL,
		AuthEndpoint:  "/auth/login",
		LookupTimeout: 5 * time.Second,
		CommitTimeout: 2 * time.Second,
	}
	client := NewClient(cfg)

	_, err := client.GetExam(context.Background(), "exam-1")
	if !pkgerr.IsTransient(err) {
		t.Fatalf("first call err = %v, want transient", err)
	}

	// The 401 dropped the cached token, so the retry re-authenticates.
	if _, err := client.GetExam(context.Background(), "exam-1"); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if got := atomic.LoadInt32(&authCalls); got != 2 {
		t.Errorf("auth calls = %d, want 2", got)
	}
}

func TestFindGrade(t *testing.T) {
	t.Run("absent is nil without error", func(t *testing.T) {
		client, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string][]model.GradeStorageRecord{"records": {}})
		})

		rec, err := client.FindGrade(context.Background(), "12345678", "exam-1")
		if err != nil {
			t.Fatalf("FindGrade: %v", err)
		}
		if rec != nil {
			t.Errorf("rec = %+v, want nil for an absent grade", rec)
		}
	})

	t.Run("existing record returned", func(t *testing.T) {
		client, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("student_id"); got != "12345678" {
				t.Errorf("student_id = %q", got)
			}
			json.NewEncoder(w).Encode(map[string][]model.GradeStorageRecord{
				"records": {{StudentID: "12345678", ExamID: "exam-1", Score: 87}},
			})
		})

		rec, err := client.FindGrade(context.Background(), "12345678", "exam-1")
		if err != nil {
			t.Fatalf("FindGrade: %v", err)
		}
		if rec == nil || rec.Score != 87 {
			t.Errorf("rec = %+v", rec)
		}
	})
}

func TestInsertGradeCommitBudget(t *testing.T) {
	client, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	client.cfg.Remote.CommitTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err := client.InsertGrade(context.Background(), model.GradeStorageRecord{
		StudentID: "12345678",
		ExamID:    "exam-1",
		Score:     90,
	})
	elapsed := time.Since(start)

	if !pkgerr.IsTransient(err) {
		t.Fatalf("err = %v, want transient on commit budget overrun", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("commit took %s, budget was 50ms", elapsed)
	}
}

func TestExistingStudentIDsEmptyInputSkipsNetwork(t *testing.T) {
	client, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty ID list")
	})

	ids, err := client.ExistingStudentIDs(context.Background(), nil)
	if err != nil || ids != nil {
		t.Fatalf("ids = %v, err = %v", ids, err)
	}
}

func TestAuthFailureIsTransient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Remote = config.RemoteConfig{
		BaseURL:       srv.URL,
		AuthEndpoint:  "/auth/login",
		LookupTimeout: time.Second,
		CommitTimeout: time.Second,
	}
	client := NewClient(cfg)

	_, err := client.GetStudent(context.Background(), "12345678")
	if !pkgerr.IsTransient(err) {
		t.Fatalf("err = %v, want transient when auth is down", err)
	}
	if errors.Is(err, pkgerr.ErrNotFound) {
		t.Error("auth failure must not read as not-found")
	}
}
