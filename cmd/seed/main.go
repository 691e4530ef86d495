// Seed tool for exercising Kestrel with synthetic marketplace data.
//
// Usage:
//
//	go run cmd/seed/main.go -url http://localhost:8080 -creators 50
//
// This tool:
//  1. Registers a population of creator accounts (mostly aged, some new)
//  2. Generates ledger transactions, planting known fraud archetypes
//  3. Runs a read-only analysis pass and prints what Kestrel found
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"
)

// transactionRequest mirrors the POST /transactions payload.
type transactionRequest struct {
	CreatorID string     `json:"creatorId"`
	Type      string     `json:"type"`
	Amount    int64      `json:"amount"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// accountRequest mirrors the POST /accounts payload.
type accountRequest struct {
	CreatorID string     `json:"creatorId"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// analysisSummary is the subset of the /analyze response we report.
type analysisSummary struct {
	Alerts []struct {
		Type      string `json:"type"`
		Severity  string `json:"severity"`
		CreatorID string `json:"creatorId"`
	} `json:"alerts"`
	SuspiciousActivities []struct {
		Type      string  `json:"type"`
		CreatorID string  `json:"creatorId"`
		RiskScore float64 `json:"riskScore"`
	} `json:"suspiciousActivities"`
	FraudScores []struct {
		CreatorID string  `json:"creatorId"`
		Overall   float64 `json:"overallScore"`
		RiskLevel string  `json:"riskLevel"`
	} `json:"fraudScores"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	creators := flag.Int("creators", 50, "Number of well-behaved creators")
	txPerCreator := flag.Int("tx", 20, "Transactions per well-behaved creator")
	workers := flag.Int("workers", 10, "Number of concurrent senders")
	seed := flag.Int64("seed", 42, "PRNG seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	client := &http.Client{Timeout: 10 * time.Second}

	fmt.Println("Kestrel seed tool")
	fmt.Printf("  URL:      %s\n", *baseURL)
	fmt.Printf("  Creators: %d (+4 planted fraudsters)\n", *creators)
	fmt.Println()

	if err := checkHealth(client, *baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	now := time.Now().UTC()

	var accounts []accountRequest
	var txs []transactionRequest

	// Background population: aged accounts with steady, unremarkable
	// royalties over the last week.
	for i := 0; i < *creators; i++ {
		id := fmt.Sprintf("creator-%03d", i)
		created := now.AddDate(0, 0, -(30 + rng.Intn(300)))
		accounts = append(accounts, accountRequest{CreatorID: id, CreatedAt: &created})

		for j := 0; j < *txPerCreator; j++ {
			at := now.Add(-time.Duration(rng.Intn(7*24)) * time.Hour)
			txs = append(txs, transactionRequest{
				CreatorID: id,
				Type:      "royalty",
				Amount:    int64(5 + rng.Intn(95)),
				CreatedAt: &at,
			})
		}
	}

	// Planted archetypes the detectors should flag.
	txs = append(txs, plantWhale(now)...)
	txs = append(txs, plantRapidPayouts(now)...)
	accounts = append(accounts, plantNewAccount(now, &txs))
	txs = append(txs, plantRoundNumbers(now)...)

	fmt.Printf("Sending %d accounts and %d transactions...\n", len(accounts), len(txs))

	for _, acct := range accounts {
		if err := post(client, *baseURL+"/accounts", acct); err != nil {
			fmt.Printf("ERROR: account %s: %v\n", acct.CreatorID, err)
			os.Exit(1)
		}
	}

	// Fan transactions out over a bounded worker pool.
	var wg sync.WaitGroup
	sem := make(chan struct{}, *workers)
	var mu sync.Mutex
	var failed int

	for _, tx := range txs {
		wg.Add(1)
		sem <- struct{}{}
		go func(tx transactionRequest) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := post(client, *baseURL+"/transactions", tx); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(tx)
	}
	wg.Wait()

	if failed > 0 {
		fmt.Printf("WARNING: %d transactions failed to send\n", failed)
	}
	fmt.Println("Ledger seeded")

	// Run the read-only analysis pass and report.
	fmt.Println("\nRunning analysis pass...")
	summary, err := analyze(client, *baseURL)
	if err != nil {
		fmt.Printf("ERROR: analysis failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nAlerts: %d\n", len(summary.Alerts))
	for _, a := range summary.Alerts {
		fmt.Printf("  [%s] %s  creator=%s\n", a.Severity, a.Type, a.CreatorID)
	}
	fmt.Printf("Suspicious activities: %d\n", len(summary.SuspiciousActivities))
	for _, s := range summary.SuspiciousActivities {
		fmt.Printf("  %s creator=%s risk=%.0f\n", s.Type, s.CreatorID, s.RiskScore)
	}
	fmt.Printf("Fraud scores: %d creators\n", len(summary.FraudScores))
	for _, f := range summary.FraudScores {
		if f.Overall > 25 {
			fmt.Printf("  creator=%s score=%.1f level=%s\n", f.CreatorID, f.Overall, f.RiskLevel)
		}
	}
}

// plantWhale drops a single oversized royalty inside the last hour.
func plantWhale(now time.Time) []transactionRequest {
	at := now.Add(-30 * time.Minute)
	return []transactionRequest{{
		CreatorID: "whale-001",
		Type:      "royalty",
		Amount:    5000,
		CreatedAt: &at,
	}}
}

// plantRapidPayouts schedules four payouts inside 24 hours.
func plantRapidPayouts(now time.Time) []transactionRequest {
	var out []transactionRequest
	for i := 0; i < 4; i++ {
		at := now.Add(-time.Duration(2+4*i) * time.Hour)
		out = append(out, transactionRequest{
			CreatorID: "cashout-001",
			Type:      "payout",
			Amount:    200,
			CreatedAt: &at,
		})
	}
	return out
}

// plantNewAccount creates a 3-day-old account with outsized earnings.
func plantNewAccount(now time.Time, txs *[]transactionRequest) accountRequest {
	created := now.AddDate(0, 0, -3)
	for i := 0; i < 4; i++ {
		at := now.Add(-time.Duration(6+12*i) * time.Hour)
		*txs = append(*txs, transactionRequest{
			CreatorID: "newbie-001",
			Type:      "royalty",
			Amount:    250,
			CreatedAt: &at,
		})
	}
	return accountRequest{CreatorID: "newbie-001", CreatedAt: &created}
}

// plantRoundNumbers emits royalties that are all exact multiples of 100.
func plantRoundNumbers(now time.Time) []transactionRequest {
	var out []transactionRequest
	for i := 0; i < 6; i++ {
		at := now.Add(-time.Duration(10*(i+1)) * time.Hour)
		out = append(out, transactionRequest{
			CreatorID: "rounder-001",
			Type:      "royalty",
			Amount:    int64(200 + 100*i),
			CreatedAt: &at,
		})
	}
	return out
}

func checkHealth(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func post(client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func analyze(client *http.Client, baseURL string) (*analysisSummary, error) {
	resp, err := client.Get(baseURL + "/analyze")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var summary analysisSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
