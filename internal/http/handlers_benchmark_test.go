package httpserver

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func BenchmarkHandleRate(b *testing.B) {
	srv := buildTestServer(b)

	const users = 64
	tokens := make([]string, users)
	for i := range tokens {
		user := fmt.Sprintf("bench-%d", i)
		mustRegister(b, srv, user)
		tokens[i] = "Bearer " + makeToken(b, user, "")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		payload := []byte(fmt.Sprintf(`{"rating":%d}`, i%6))
		req := httptest.NewRequest(http.MethodPut, "/v1/pokemon/25/rating", bytes.NewReader(payload))
		req.Header.Set("Authorization", tokens[i%users])
		rec := httptest.NewRecorder()

		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated && rec.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rec.Code)
		}
	}
}

func BenchmarkHandleSummaries(b *testing.B) {
	srv := buildTestServer(b)
	mustRegister(b, srv, "bench")
	for n := 1; n <= 50; n++ {
		do(b, srv, http.MethodPut, fmt.Sprintf("/v1/pokemon/%d/rating", n), "bench", `{"rating":3}`)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := do(b, srv, http.MethodGet, "/v1/pokemon/ratings?numbers=1,5,10,20,40,50,60", "", "")
		if rec.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rec.Code)
		}
	}
}
