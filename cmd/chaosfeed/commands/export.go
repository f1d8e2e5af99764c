package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NethermindEth/chaosfeed/config"
	"github.com/NethermindEth/chaosfeed/core"
	"github.com/NethermindEth/chaosfeed/export"
	"github.com/NethermindEth/chaosfeed/storage"
)

var (
	exportFromBadger bool
	exportRun        string
	exportOutput     string
	exportList       bool
	exportDelete     bool
)

// ExportCmd writes a recorded iteration log
var ExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a recorded iteration log",
	Long: `Export the prompt/response log of a run as an indented JSON array.
With --from-badger runs are read from the badger data directory; otherwise the
export file written during the run is re-emitted. The flag defaults to the
export.badger setting.`,
	RunE: runExport,
}

func init() {
	ExportCmd.Flags().BoolVar(&exportFromBadger, "from-badger", false, "Read runs from the badger data directory (default from export.badger)")
	ExportCmd.Flags().StringVar(&exportRun, "run", "", "Run id to export (default: latest)")
	ExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "-", "Output file, - for stdout")
	ExportCmd.Flags().BoolVar(&exportList, "list", false, "List recorded runs instead of exporting")
	ExportCmd.Flags().BoolVar(&exportDelete, "delete", false, "Delete the run given by --run instead of exporting")
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fromBadger := cfg.Export.Badger
	if cmd.Flags().Changed("from-badger") {
		fromBadger = exportFromBadger
	}
	if (exportList || exportDelete) && !fromBadger {
		return errors.New("--list and --delete need --from-badger")
	}

	var records []core.IterationRecord
	if fromBadger {
		records, err = recordsFromBadger(cmd, cfg)
	} else {
		records, err = recordsFromFile(cfg.Export.FilePath)
	}
	if err != nil || records == nil {
		return err
	}

	var sink export.Sink = export.StreamSink{W: cmd.OutOrStdout()}
	if exportOutput != "-" {
		sink = export.NewFileSink(exportOutput)
	}
	if err := sink.Export(context.Background(), records); err != nil {
		return err
	}
	if exportOutput != "-" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d records to %s\n", len(records), exportOutput)
	}
	return nil
}

// recordsFromBadger returns nil records when it only listed or deleted runs.
func recordsFromBadger(cmd *cobra.Command, cfg *config.Config) ([]core.IterationRecord, error) {
	if cfg.Storage.InMemory {
		return nil, errors.New("storage is configured in memory, there is nothing to export")
	}
	db, err := storage.Open(storage.DefaultConfig(cfg.Storage.DataDir), zap.NewNop())
	if err != nil {
		return nil, err
	}
	defer db.Close()
	repo := storage.NewIterationRepository(db)

	if exportList {
		runs, err := repo.Runs()
		if err != nil {
			return nil, err
		}
		printRuns(cmd.OutOrStdout(), runs)
		return nil, nil
	}

	if exportDelete {
		if exportRun == "" {
			return nil, errors.New("--delete needs --run")
		}
		if _, err := repo.Run(exportRun); err != nil {
			return nil, fmt.Errorf("run %s: %w", exportRun, err)
		}
		if err := repo.DeleteRun(exportRun); err != nil {
			return nil, err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", exportRun)
		return nil, nil
	}

	runID := exportRun
	if runID == "" {
		latest, err := repo.Latest()
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("no runs recorded in %s", cfg.Storage.DataDir)
		}
		if err != nil {
			return nil, err
		}
		runID = latest.ID
	} else if _, err := repo.Run(runID); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	records, err := repo.Records(runID)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []core.IterationRecord{}
	}
	return records, nil
}

func recordsFromFile(path string) ([]core.IterationRecord, error) {
	if path == "" {
		return nil, errors.New("export.file_path is not configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	records := []core.IterationRecord{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return records, nil
}

func printRuns(out io.Writer, runs []storage.RunInfo) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tTURNS\tTOPIC")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.ID, r.StartedAt.Format(time.DateTime), r.Count, r.Topic)
	}
	w.Flush()
}
