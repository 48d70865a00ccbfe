// Package stats writes run artifacts: the per-run config record, the run
// index, the appended aggregated-posterior log and the generated-trajectory
// array.
package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	runIndexFile  = "run_index.json"
	posteriorFile = "aggr_posterior.csv"
	outputFile    = "generated_output.csv"
)

// RunConfigRecord is the JSON snapshot of one run's configuration.
type RunConfigRecord struct {
	RunID          string    `json:"run_id"`
	Suffix         string    `json:"suffix,omitempty"`
	Atoms          int       `json:"atoms"`
	Dims           int       `json:"dims"`
	Timesteps      int       `json:"timesteps"`
	CondDims       int       `json:"cond_dims,omitempty"`
	Partition      []int     `json:"partition"`
	SplitPoint     int       `json:"split_point"`
	Epochs         int       `json:"epochs"`
	BatchSize      int       `json:"batch_size"`
	LR             float64   `json:"lr"`
	LRDecay        int       `json:"lr_decay"`
	Gamma          float64   `json:"gamma"`
	Patience       int       `json:"patience"`
	Temperature    float64   `json:"temperature"`
	TempDecay      int       `json:"temp_decay"`
	Tau            float64   `json:"tau"`
	Hard           bool      `json:"hard"`
	Prior          bool      `json:"prior"`
	SkipFirst      bool      `json:"skip_first"`
	CondHidden     bool      `json:"cond_hidden"`
	CondMsgs       bool      `json:"cond_msgs"`
	Variance       float64   `json:"variance"`
	Beta           float64   `json:"beta"`
	MSELoss        bool      `json:"mse_loss"`
	Seed           int64     `json:"seed"`
	EncoderHidden  int       `json:"encoder_hidden"`
	DecoderHidden  int       `json:"decoder_hidden"`
	EncoderDropout float64   `json:"encoder_dropout"`
	DecoderDropout float64   `json:"decoder_dropout"`
	FirstFrameMean []float64 `json:"first_frame_mean,omitempty"`
	FirstFrameStd  []float64 `json:"first_frame_std,omitempty"`
}

// RunIndexEntry is one line of the run index, newest first.
type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Suffix       string  `json:"suffix,omitempty"`
	Atoms        int     `json:"atoms"`
	Epochs       int     `json:"epochs"`
	EpochsRun    int     `json:"epochs_run"`
	BestValLoss  float64 `json:"best_val_loss"`
	StoppedEarly bool    `json:"stopped_early"`
	Seed         int64   `json:"seed"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

func WriteRunConfig(baseDir string, record RunConfigRecord) (string, error) {
	if record.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, record.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "config.json"), record); err != nil {
		return "", err
	}
	return runDir, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfigRecord, bool, error) {
	path := filepath.Join(baseDir, runID, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfigRecord{}, false, nil
		}
		return RunConfigRecord{}, false, err
	}

	var record RunConfigRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return RunConfigRecord{}, false, err
	}
	return record, true, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAtUTC > entries[j].CreatedAtUTC
	})
	return entries, nil
}

// AppendPosterior appends one comma-separated line holding the row-major
// flattening of the [pairs x total edge types] aggregated posterior.
func AppendPosterior(runDir string, posterior [][]float64) error {
	if len(posterior) == 0 {
		return fmt.Errorf("posterior must not be empty")
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}

	values := make([]string, 0, len(posterior)*len(posterior[0]))
	for _, row := range posterior {
		for _, v := range row {
			values = append(values, strconv.FormatFloat(v, 'g', -1, 64))
		}
	}

	file, err := os.OpenFile(filepath.Join(runDir, posteriorFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := fmt.Fprintf(file, "%s\n", strings.Join(values, ", ")); err != nil {
		return err
	}
	return file.Sync()
}

// ReadPosteriorLog returns every appended posterior line, flattened.
func ReadPosteriorLog(runDir string) ([][]float64, bool, error) {
	data, err := os.ReadFile(filepath.Join(runDir, posteriorFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var records [][]float64
	for lineNo, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		record := make([]float64, 0, len(fields))
		for col, field := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, false, fmt.Errorf("posterior log line %d col %d: %w", lineNo+1, col+1, err)
			}
			record = append(record, v)
		}
		records = append(records, record)
	}
	return records, true, nil
}

// WriteGeneratedOutput persists the concatenated generated trajectories as
// one CSV: a shape header followed by one flattened sample per row.
func WriteGeneratedOutput(runDir string, outputs [][][][]float64) error {
	if len(outputs) == 0 {
		return fmt.Errorf("generated outputs must not be empty")
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}

	atoms := len(outputs[0])
	timesteps := len(outputs[0][0])
	dims := len(outputs[0][0][0])

	file, err := os.Create(filepath.Join(runDir, outputFile))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{
		strconv.Itoa(atoms),
		strconv.Itoa(timesteps),
		strconv.Itoa(dims),
	}); err != nil {
		return err
	}
	for s, sample := range outputs {
		if len(sample) != atoms {
			return fmt.Errorf("sample %d has %d atoms, want %d", s, len(sample), atoms)
		}
		row := make([]string, 0, atoms*timesteps*dims)
		for _, atom := range sample {
			for _, frame := range atom {
				for _, v := range frame {
					row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
				}
			}
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadGeneratedOutput loads the generated-trajectory artifact back.
func ReadGeneratedOutput(runDir string) ([][][][]float64, bool, error) {
	file, err := os.Open(filepath.Join(runDir, outputFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, false, err
	}
	if len(header) != 3 {
		return nil, false, fmt.Errorf("generated output header must be atoms,timesteps,dims")
	}
	atoms, err := strconv.Atoi(header[0])
	if err != nil {
		return nil, false, err
	}
	timesteps, err := strconv.Atoi(header[1])
	if err != nil {
		return nil, false, err
	}
	dims, err := strconv.Atoi(header[2])
	if err != nil {
		return nil, false, err
	}

	var outputs [][][][]float64
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) != atoms*timesteps*dims {
			return nil, false, fmt.Errorf("generated output row has %d values, want %d", len(record), atoms*timesteps*dims)
		}
		sample := make([][][]float64, atoms)
		idx := 0
		for i := 0; i < atoms; i++ {
			sample[i] = make([][]float64, timesteps)
			for t := 0; t < timesteps; t++ {
				frame := make([]float64, dims)
				for d := 0; d < dims; d++ {
					v, err := strconv.ParseFloat(record[idx], 64)
					if err != nil {
						return nil, false, err
					}
					frame[d] = v
					idx++
				}
				sample[i][t] = frame
			}
		}
		outputs = append(outputs, sample)
	}
	return outputs, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
