package sheets

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type fakeSheet struct {
	key *rsa.PublicKey

	mu         sync.Mutex
	tokenCalls int
	rows       [][]string
	appends    []appendCall
	updates    map[string]string
}

type appendCall struct {
	Range  string
	Values [][]any
}

func (f *fakeSheet) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.Form.Get("grant_type") != jwtBearerGrant {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		// The client runs on a fixed clock, so expiry is not checked here.
		parser := &jwt.Parser{SkipClaimsValidation: true}
		token, err := parser.Parse(r.Form.Get("assertion"), func(tok *jwt.Token) (interface{}, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return f.key, nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "bad assertion", http.StatusUnauthorized)
			return
		}
		claims := token.Claims.(jwt.MapClaims)
		if token.Header["kid"] != "kid-1" {
			http.Error(w, "bad kid", http.StatusUnauthorized)
			return
		}
		if claims["iss"] != "bot@example.iam.gserviceaccount.com" || claims["scope"] != scope {
			http.Error(w, "bad claims", http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		f.tokenCalls++
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"access_token":"tok-1","expires_in":3600,"token_type":"Bearer"}`)
	})
	mux.HandleFunc("/v4/spreadsheets/sheet-1/values/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			http.Error(w, `{"error":{"code":401}}`, http.StatusUnauthorized)
			return
		}
		rng := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/sheet-1/values/")
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			values := make([][]any, len(f.rows))
			for i, row := range f.rows {
				for _, cell := range row {
					values[i] = append(values[i], cell)
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": values})
		case http.MethodPost:
			if !strings.HasSuffix(rng, ":append") || r.URL.Query().Get("valueInputOption") != "RAW" {
				http.Error(w, "bad append", http.StatusBadRequest)
				return
			}
			var body struct {
				Values [][]any `json:"values"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.appends = append(f.appends, appendCall{Range: strings.TrimSuffix(rng, ":append"), Values: body.Values})
			_, _ = io.WriteString(w, `{"updates":{"updatedCells":4}}`)
		case http.MethodPut:
			var body struct {
				Range  string  `json:"range"`
				Values [][]any `json:"values"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Range != rng {
				http.Error(w, "range mismatch", http.StatusBadRequest)
				return
			}
			f.updates[rng] = body.Values[0][0].(string)
			_, _ = io.WriteString(w, `{"updatedCells":1}`)
		}
	})
	return mux
}

func newTestClient(t *testing.T, rows [][]string) (*Client, *fakeSheet) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	fake := &fakeSheet{key: &key.PublicKey, rows: rows, updates: map[string]string{}}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	raw, _ := json.Marshal(map[string]string{
		"type":           "service_account",
		"client_email":   "bot@example.iam.gserviceaccount.com",
		"private_key":    string(pemKey),
		"private_key_id": "kid-1",
		"token_uri":      srv.URL + "/token",
	})
	account, err := ParseServiceAccount(raw)
	if err != nil {
		t.Fatalf("ParseServiceAccount() error = %v", err)
	}

	fixed := time.Date(2025, time.March, 7, 9, 30, 0, 0, time.UTC)
	client, err := New("sheet-1", account, srv.Client(),
		WithBaseURL(srv.URL+"/v4/spreadsheets"),
		withClock(func() time.Time { return fixed }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client, fake
}

func TestParseServiceAccountValidates(t *testing.T) {
	if _, err := ParseServiceAccount([]byte(`{"client_email":"a@b"}`)); err == nil {
		t.Fatal("expected error without private key")
	}
	sa, err := ParseServiceAccount([]byte(`{"client_email":"a@b","private_key":"k"}`))
	if err != nil {
		t.Fatalf("ParseServiceAccount() error = %v", err)
	}
	if sa.TokenURI != defaultTokenURL {
		t.Fatalf("unexpected token uri %q", sa.TokenURI)
	}
}

func TestAppendContentIdeaCachesToken(t *testing.T) {
	client, fake := newTestClient(t, nil)
	ctx := context.Background()

	if err := client.AppendContentIdea(ctx, "Build AI apps", "Write a guide", []string{"blog", "youtube"}); err != nil {
		t.Fatalf("AppendContentIdea() error = %v", err)
	}
	if err := client.AppendContentIdea(ctx, "Second", "Prompt", nil); err != nil {
		t.Fatalf("AppendContentIdea() error = %v", err)
	}

	if fake.tokenCalls != 1 {
		t.Fatalf("expected one token exchange, got %d", fake.tokenCalls)
	}
	if len(fake.appends) != 2 {
		t.Fatalf("expected 2 appends, got %d", len(fake.appends))
	}
	first := fake.appends[0]
	if first.Range != PostIdeasRange {
		t.Fatalf("unexpected range %q", first.Range)
	}
	want := []any{"2025-03-07 09:30:00", "Build AI apps", "Write a guide", "blog, youtube"}
	for i, v := range want {
		if first.Values[0][i] != v {
			t.Fatalf("cell %d = %v, want %v", i, first.Values[0][i], v)
		}
	}
	if fake.appends[1].Values[0][3] != "Not specified" {
		t.Fatalf("unexpected types cell %v", fake.appends[1].Values[0][3])
	}
}

func TestLogTradeJournalUpdatesExistingRow(t *testing.T) {
	client, fake := newTestClient(t, [][]string{
		{"Date", "Stock"},
		{"3/6/2025", "TSLA"},
		{"3/7/2025", "aapl"},
	})

	res, err := client.LogTradeJournal(context.Background(), TradeEntry{
		Date:        "3/7/2025",
		StockSymbol: "AAPL",
		Commentary:  "Sold too early",
		Lessons:     "Trust the plan",
	})
	if err != nil {
		t.Fatalf("LogTradeJournal() error = %v", err)
	}
	if !res.Updated || res.Row != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if fake.updates["'Trade Journal'!L3"] != "Sold too early" || fake.updates["'Trade Journal'!M3"] != "Trust the plan" {
		t.Fatalf("unexpected updates %v", fake.updates)
	}
	if len(fake.appends) != 0 {
		t.Fatalf("existing row should not append")
	}
}

func TestLogTradeJournalAppendsNewRow(t *testing.T) {
	client, fake := newTestClient(t, [][]string{{"Date", "Stock"}})

	res, err := client.LogTradeJournal(context.Background(), TradeEntry{Date: "3/7/2025", StockSymbol: "nvda", Commentary: "Bought the dip"})
	if err != nil {
		t.Fatalf("LogTradeJournal() error = %v", err)
	}
	if res.Updated || res.Message != "Added new row for NVDA on 3/7/2025" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(fake.appends) != 1 {
		t.Fatalf("expected 1 append, got %d", len(fake.appends))
	}
	row := fake.appends[0].Values[0]
	if len(row) != 13 || row[0] != "3/7/2025" || row[1] != "NVDA" || row[11] != "Bought the dip" || row[12] != "" {
		t.Fatalf("unexpected row %v", row)
	}
}

func TestLogTradeJournalRequiresKey(t *testing.T) {
	client, _ := newTestClient(t, nil)
	if _, err := client.LogTradeJournal(context.Background(), TradeEntry{Date: "3/7/2025"}); err == nil {
		t.Fatal("expected error without symbol")
	}
}

func TestNon2xxReturnsTypedError(t *testing.T) {
	client, _ := newTestClient(t, nil)
	client.sheetID = "missing"

	err := client.AppendRow(context.Background(), PostIdeasRange, []any{"x"})
	var sheetsErr *Error
	if !errors.As(err, &sheetsErr) {
		t.Fatalf("expected *Error, got %T (%v)", err, err)
	}
	if sheetsErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status %d", sheetsErr.StatusCode)
	}
}
