// Queries recorded alerts either through the ns-api HTTP endpoints or
// directly against ClickHouse.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"NetSentry/internal/config"

	"github.com/ClickHouse/clickhouse-go/v2"
)

func main() {
	mode := flag.String("mode", "api", "Query mode: 'api' to query via HTTP API, 'direct' to query ClickHouse directly.")
	what := flag.String("what", "alerts", "API resource: 'alerts', 'active' or 'stats'.")
	addr := flag.String("addr", "http://localhost:8080", "Base URL of the ns-api server.")
	severity := flag.String("severity", "", "Filter alerts by severity (optional).")
	detector := flag.String("detector", "", "Filter alerts by detector (optional).")
	limit := flag.Int("limit", 50, "Maximum rows to return.")
	hours := flag.Int("hours", 24, "Look-back window in hours for direct mode.")
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file (direct mode).")
	flag.Parse()

	log.Printf("Running in '%s' mode.", *mode)

	switch *mode {
	case "api":
		queryViaAPI(*addr, *what, *severity, *detector, *limit)
	case "direct":
		directQueryClickHouse(*configFile, *hours)
	default:
		log.Fatalf("Invalid mode: %s. Use 'api' or 'direct'.", *mode)
	}
}

func queryViaAPI(base, what, severity, detector string, limit int) {
	var path string
	params := url.Values{}
	switch what {
	case "alerts":
		path = "/api/v1/alerts"
		params.Set("limit", fmt.Sprint(limit))
		if severity != "" {
			params.Set("severity", severity)
		}
		if detector != "" {
			params.Set("detector", detector)
		}
	case "active":
		path = "/api/v1/alerts/active"
	case "stats":
		path = "/api/v1/stats"
		params.Set("limit", fmt.Sprint(limit))
	default:
		log.Fatalf("Invalid resource: %s. Use 'alerts', 'active' or 'stats'.", what)
	}

	apiURL := base + path
	if encoded := params.Encode(); encoded != "" {
		apiURL += "?" + encoded
	}
	log.Printf("Sending request to %s", apiURL)

	resp, err := http.Get(apiURL)
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("API returned non-200 status code: %d\nResponse: %s", resp.StatusCode, string(respBody))
	}

	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, respBody, "", "  "); err != nil {
		log.Printf("Could not prettify JSON, printing raw response:")
		fmt.Println(string(respBody))
		return
	}

	log.Println("---")
	fmt.Println(prettyJSON.String())
}

func directQueryClickHouse(configFile string, hours int) {
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.ClickHouse.Host, cfg.ClickHouse.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
		},
	})
	if err != nil {
		log.Fatalf("Error connecting to ClickHouse: %v", err)
	}
	defer conn.Close()
	log.Println("Successfully connected to ClickHouse.")

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			Detector,
			Severity,
			COUNT(*) AS Alerts,
			MAX(CreatedAt) AS Latest
		FROM alerts
		WHERE CreatedAt >= ?
		GROUP BY Detector, Severity
		ORDER BY Detector, Severity
	`)
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	rows, err := conn.Query(context.Background(), queryBuilder.String(), since)
	if err != nil {
		log.Fatalf("Error executing query: %v", err)
	}
	defer rows.Close()

	log.Println("--- Alerts by detector and severity (Direct) ---")

	var foundResult bool
	for rows.Next() {
		foundResult = true
		var (
			det    string
			sev    string
			alerts uint64
			latest time.Time
		)
		if err := rows.Scan(&det, &sev, &alerts, &latest); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}
		fmt.Printf("Detector: %s, Severity: %s\n", det, sev)
		fmt.Printf("  Alerts: %d\n", alerts)
		fmt.Printf("  Latest: %s\n", latest.Format(time.RFC3339))
		fmt.Println("---------------------")
	}
	if !foundResult {
		log.Println("No data found for the specified criteria.")
	}
	if err := rows.Err(); err != nil {
		log.Printf("An error occurred during row iteration: %v", err)
	}
}
