package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/wms-platform/opname-service/internal/application"
	mongoRepo "github.com/wms-platform/opname-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/opname-service/pkg/cloudevents"
	"github.com/wms-platform/opname-service/pkg/logging"
	"github.com/wms-platform/opname-service/pkg/mongodb"
)

// Counter audit tool: recounts the rows of every session and reports any
// session whose stored counters drifted. Exits 1 on drift.

var (
	mongoURI  = flag.String("mongo-uri", "mongodb://localhost:27017/?replicaSet=rs0", "MongoDB connection URI")
	dbName    = flag.String("db", "opname", "Database name")
	sessionID = flag.String("session", "", "Audit a single session")
	asJSON    = flag.Bool("json", false, "Print the reports as JSON")
	timeout   = flag.Duration("timeout", 5*time.Minute, "Overall deadline")
)

func main() {
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	logger := logging.New(&logging.Config{Level: logging.LevelWarn, ServiceName: "opname-audit", Output: os.Stderr})

	cfg := mongodb.DefaultConfig()
	cfg.URI = *mongoURI
	cfg.Database = *dbName
	client, err := mongodb.NewClient(ctx, cfg, nil, logger)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Close(context.Background())

	store := mongoRepo.NewSessionStore(client, cloudevents.NewEventFactory("/opname-audit"))
	queries := application.NewQueryService(store, nil, logger)

	drifted, err := audit(ctx, queries, *sessionID, *asJSON, os.Stdout)
	if err != nil {
		log.Fatalf("Audit failed: %v", err)
	}
	if drifted > 0 {
		log.Printf("%d session(s) with counter drift", drifted)
		os.Exit(1)
	}
}

// audit writes one report line per session and returns how many drifted
func audit(ctx context.Context, queries *application.QueryService, sessionID string, asJSON bool, out io.Writer) (int, error) {
	var reports []*application.VerificationDTO
	if sessionID != "" {
		report, err := queries.VerifyCounters(ctx, sessionID)
		if err != nil {
			return 0, err
		}
		reports = []*application.VerificationDTO{report}
	} else {
		var err error
		if reports, err = queries.VerifyAll(ctx); err != nil {
			return 0, err
		}
	}

	drifted := 0
	for _, r := range reports {
		if !r.Consistent || !r.Balanced {
			drifted++
		}
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return drifted, enc.Encode(reports)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTATUS\tEXPECTED\tSCANNED\tMATCH\tMISSING\tUNREGISTERED\tRESULT")
	for _, r := range reports {
		result := "ok"
		switch {
		case !r.Consistent:
			result = fmt.Sprintf("drift (rows: %d/%d/%d/%d/%d)", r.Recounted.TotalExpected, r.Recounted.TotalScanned,
				r.Recounted.TotalMatch, r.Recounted.TotalMissing, r.Recounted.TotalUnregistered)
		case !r.Balanced:
			result = "unbalanced"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n", r.SessionID, r.Status,
			r.Stored.TotalExpected, r.Stored.TotalScanned, r.Stored.TotalMatch, r.Stored.TotalMissing, r.Stored.TotalUnregistered, result)
	}
	return drifted, tw.Flush()
}
