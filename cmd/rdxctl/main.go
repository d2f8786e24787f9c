package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	cli "github.com/jawher/mow.cli"
	"github.com/raredx/triage/pkg/common/logger"
	"github.com/raredx/triage/pkg/common/models"
	"github.com/raredx/triage/pkg/gateway/httpclient"
	"github.com/raredx/triage/pkg/phenotype"
)

func main() {
	app := cli.App("rdxctl", "Command line client for the rare-disease triage gateway")

	gatewayURL := app.String(cli.StringOpt{
		Name:   "gateway",
		Value:  "http://localhost:8080/api/v1",
		Desc:   "Base URL of the triage gateway API",
		EnvVar: "RDXCTL_GATEWAY_URL",
	})
	timeout := app.String(cli.StringOpt{
		Name:   "timeout",
		Value:  "30s",
		Desc:   "Request timeout",
		EnvVar: "RDXCTL_TIMEOUT",
	})

	newClient := func() *gatewayClient {
		d, err := time.ParseDuration(*timeout)
		if err != nil {
			d = 30 * time.Second
		}
		return &gatewayClient{http: httpclient.New(d), base: strings.TrimRight(*gatewayURL, "/")}
	}

	app.Command("normalize", "Print the canonical form of phenotype codes", func(cmd *cli.Cmd) {
		cmd.Spec = "CODE..."
		codes := cmd.StringsArg("CODE", nil, "Phenotype codes in any accepted spelling")
		cmd.Action = func() {
			for _, raw := range *codes {
				code := phenotype.Normalize(raw)
				fmt.Printf("%s\t%s\t%s\n", raw, code, phenotype.TermURL(code))
			}
		}
	})

	app.Command("predict", "Rank candidate diseases for a set of phenotype codes", func(cmd *cli.Cmd) {
		cmd.Spec = "[--years] [--months] CODE..."
		years := cmd.IntOpt("years", 0, "Age in years")
		months := cmd.IntOpt("months", 0, "Additional age in months")
		codes := cmd.StringsArg("CODE", nil, "Phenotype codes")
		cmd.Action = func() {
			req := models.PredictionRequest{AgeYears: *years, AgeMonths: *months}
			for _, c := range *codes {
				req.Symptoms = append(req.Symptoms, models.SymptomSelection{Code: c})
			}
			var resp struct {
				models.PredictionResponse
				Warning string `json:"warning"`
			}
			if err := newClient().do(http.MethodPost, "/predict", req, &resp); err != nil {
				fail(err)
			}
			if resp.Warning != "" {
				fmt.Fprintln(os.Stderr, "warning:", resp.Warning)
			}
			fmt.Println("session:", resp.Token)
			for _, c := range resp.Candidates {
				fmt.Printf("%3d  %-50s %6.1f%%  %s\n", c.Rank, c.Name, c.Confidence, c.MatchedNodes)
			}
		}
	})

	app.Command("map", "Map a free-text description to phenotype terms", func(cmd *cli.Cmd) {
		cmd.Spec = "TEXT..."
		words := cmd.StringsArg("TEXT", nil, "Symptom description")
		cmd.Action = func() {
			var resp struct {
				Terms []models.PhenotypeTerm `json:"terms"`
			}
			body := map[string]string{"text": strings.Join(*words, " ")}
			if err := newClient().do(http.MethodPost, "/phenotypes/map", body, &resp); err != nil {
				fail(err)
			}
			printTerms(resp.Terms)
		}
	})

	app.Command("search", "Search the phenotype catalog", func(cmd *cli.Cmd) {
		query := cmd.StringArg("QUERY", "", "Search text, at least three characters")
		cmd.Action = func() {
			var resp struct {
				Terms []models.PhenotypeTerm `json:"terms"`
			}
			q := url.Values{}
			q.Set("q", *query)
			if err := newClient().do(http.MethodGet, "/phenotypes?"+q.Encode(), nil, &resp); err != nil {
				fail(err)
			}
			printTerms(resp.Terms)
		}
	})

	if err := app.Run(os.Args); err != nil {
		logger.Log.WithError(err).Fatal("rdxctl failed")
	}
}

func printTerms(terms []models.PhenotypeTerm) {
	for _, t := range terms {
		fmt.Printf("%s\t%s\n", t.ID, t.Name)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	cli.Exit(1)
}

type gatewayClient struct {
	http *http.Client
	base string
}

func (c *gatewayClient) do(method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.http.Timeout+time.Second)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if len(e.Fields) > 0 {
			return fmt.Errorf("%s (%d): %v", e.Error, resp.StatusCode, e.Fields)
		}
		return &httpclient.StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode, Message: e.Error}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
