package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"qexec-go/config"
	"qexec-go/logging"
	"qexec-go/metrics"
	"qexec-go/operators"
	"qexec-go/operators/materialize"
	"qexec-go/operators/project/source"
	"qexec-go/planner"
	"qexec-go/storage"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log/level"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

func main() {
	app := kingpin.New("qexec-go", "Run one query described in a yaml file.")
	configFile := app.Flag("config", "Engine config (.yaml or .yml).").String()
	envFile := app.Flag("env", ".env file holding S3_ACCESS_KEY and S3_SECRET_KEY.").String()
	printMetrics := app.Flag("print-metrics", "Write execution metrics to stderr when done.").Bool()
	queryPath := app.Arg("query", "Query file.").Required().ExistingFile()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if *configFile != "" {
		if err := config.Decode(*configFile); err != nil {
			exitWithErr(err)
		}
	}
	var envs []string
	if *envFile != "" {
		envs = append(envs, *envFile)
	}
	if err := config.LoadEnv(envs...); err != nil {
		exitWithErr(err)
	}
	cfg := config.GetConfig()
	if err := logging.Init(cfg.Log.Format, cfg.Log.Level); err != nil {
		exitWithErr(err)
	}

	reg := prometheus.NewRegistry()
	var m *metrics.Metrics
	if cfg.Metrics.EnableMetrics {
		m = metrics.New(cfg.Metrics.Namespace, reg)
	} else {
		m = metrics.NewNop()
	}

	if err := run(context.Background(), cfg, m, *queryPath, os.Stdout); err != nil {
		exitWithErr(err)
	}
	if *printMetrics && cfg.Metrics.EnableMetrics {
		if err := writeMetrics(reg, os.Stderr); err != nil {
			exitWithErr(err)
		}
	}
}

func run(ctx context.Context, cfg *config.Config, m *metrics.Metrics, queryPath string, out io.Writer) error {
	qf, err := readQueryFile(queryPath)
	if err != nil {
		return err
	}
	ok, zlevel := zstd.EncoderLevelFromString(cfg.Storage.CompressionLevel)
	if !ok {
		return fmt.Errorf("unknown compression level %q", cfg.Storage.CompressionLevel)
	}
	st, err := storage.NewStore(storage.Options{
		BlockSize:        cfg.Buffer.BlockSize,
		AvailableBuffs:   cfg.Buffer.AvailableBuffers,
		SpillDir:         cfg.Storage.SpillDir,
		CompressionLevel: zlevel,
		Metrics:          m,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			level.Warn(logging.Logger).Log("msg", "failed to close store", "err", err)
		}
	}()
	cat := storage.NewCatalog(st)

	var objects source.ObjectStore
	for _, t := range qf.Tables {
		if t.Key != "" && objects == nil {
			if objects, err = source.NewObjectStore(cfg.S3); err != nil {
				return err
			}
		}
		n, err := loadTable(ctx, cat, objects, t, cfg.Storage.LoadBatchSize)
		if err != nil {
			return fmt.Errorf("load table %s: %w", t.Name, err)
		}
		level.Info(logging.Logger).Log("msg", "loaded table", "table", t.Name, "rows", n)
	}

	qd, err := qf.Query.toQueryData()
	if err != nil {
		return err
	}
	mctx := materialize.NewContext(st, nil, logging.Logger)
	plan, err := planner.NewHeuristicPlanner(mctx, cat, cfg.Planner.JoinAlgorithm).CreatePlan(qd)
	if err != nil {
		return err
	}
	level.Info(logging.Logger).Log("msg", "planned query", "query", qd, "blocks", plan.BlocksAccessed(), "records", plan.RecordsOutput())
	if cfg.Planner.Explain {
		fmt.Fprintf(out, "plan: %s\n", plan)
	}

	fields := plan.Schema().Fields()
	s, err := plan.Open()
	if err != nil {
		return err
	}
	defer s.Close()
	fmt.Fprintln(out, strings.Join(fields, "\t"))
	rows := 0
	for {
		more, err := s.Next()
		if err != nil {
			return err
		}
		if !more {
			break
		}
		if err := printRow(out, s, fields); err != nil {
			return err
		}
		rows++
	}
	m.RowsEmitted.Observe(float64(rows))
	level.Info(logging.Logger).Log("msg", "query finished", "rows", rows)
	return nil
}

func loadTable(ctx context.Context, cat *storage.Catalog, objects source.ObjectStore, t tableSource, batchSize int) (int, error) {
	name := t.Path
	if t.Key != "" {
		name = t.Key
	}
	kind, err := source.MimeOf(name)
	if err != nil {
		return 0, err
	}
	var f *os.File
	switch {
	case t.Path != "":
		if f, err = os.Open(t.Path); err != nil {
			return 0, err
		}
	case kind == source.MimeCSV:
		body, err := objects.Get(ctx, t.Key)
		if err != nil {
			return 0, err
		}
		defer body.Close()
		return source.LoadCSV(cat, t.Name, body, batchSize)
	default:
		if f, err = source.DownloadLocally(ctx, objects, t.Key, ""); err != nil {
			return 0, err
		}
		defer os.Remove(f.Name())
	}
	defer f.Close()
	if kind == source.MimeCSV {
		return source.LoadCSV(cat, t.Name, f, batchSize)
	}
	return source.LoadParquet(ctx, cat, t.Name, f, t.Columns, batchSize)
}

func printRow(w io.Writer, s operators.Scan, fields []string) error {
	vals := make([]string, len(fields))
	for i, f := range fields {
		v, err := s.GetVal(f)
		if err != nil {
			return err
		}
		vals[i] = v.String()
	}
	_, err := fmt.Fprintln(w, strings.Join(vals, "\t"))
	return err
}

func writeMetrics(g prometheus.Gatherer, w io.Writer) error {
	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

func exitWithErr(err error) {
	level.Error(logging.Logger).Log("msg", "qexec-go failed", "err", err)
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
