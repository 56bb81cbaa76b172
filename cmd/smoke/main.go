package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

type loginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}

type meanResponse struct {
	Region      string  `json:"region"`
	MeanPrice   float64 `json:"mean_price"`
	RecordCount int     `json:"record_count"`
}

func main() {
	base := strings.TrimRight(env("NEMPRICE_SMOKE_URL", "http://localhost:8080"), "/")
	user := env("NEMPRICE_SMOKE_USER", "admin")
	password := os.Getenv("NEMPRICE_SMOKE_PASSWORD")
	region := env("NEMPRICE_SMOKE_REGION", "NSW")
	if password == "" {
		log.Fatal("NEMPRICE_SMOKE_PASSWORD is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := &http.Client{Timeout: 5 * time.Second}

	if err := expectStatus(ctx, client, http.MethodGet, base+"/healthz", "", nil, http.StatusOK, nil); err != nil {
		log.Fatalf("healthz: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"username": user, "password": password})
	var login loginResponse
	if err := expectStatus(ctx, client, http.MethodPost, base+"/v1/auth/login", "", body, http.StatusOK, &login); err != nil {
		log.Fatalf("login: %v", err)
	}
	if login.Token == "" || login.TokenType != "Bearer" || login.ExpiresIn != 86400 {
		log.Fatalf("unexpected login response: %+v", login)
	}

	if err := expectStatus(ctx, client, http.MethodGet, base+"/v1/prices/regions", "Token "+login.Token, nil, http.StatusUnauthorized, nil); err != nil {
		log.Fatalf("wrong scheme must be rejected: %v", err)
	}

	var mean meanResponse
	q := url.Values{"region": []string{region}}
	if err := expectStatus(ctx, client, http.MethodGet, base+"/v1/prices/mean?"+q.Encode(), "Bearer "+login.Token, nil, http.StatusOK, &mean); err != nil {
		log.Fatalf("mean price: %v", err)
	}
	if mean.Region != region || mean.RecordCount < 1 {
		log.Fatalf("unexpected mean response: %+v", mean)
	}

	fmt.Printf("smoke test passed: region=%s mean_price=%.2f records=%d\n", mean.Region, mean.MeanPrice, mean.RecordCount)
}

func expectStatus(ctx context.Context, client *http.Client, method, target, authz string, body []byte, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("status %d (want %d): %s %s", resp.StatusCode, want, e.Code, e.Error)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
