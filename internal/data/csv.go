package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// LoadSplits reads the three dataset splits from folder. Trajectories live
// in traj_{split}_{suffix}.csv; conditioning features, when condDims > 0,
// in cond_{split}_{suffix}.csv.
func LoadSplits(folder, suffix string, batchSize, condDims int) (train, val, test *SliceLoader, err error) {
	if folder == "" {
		return nil, nil, nil, fmt.Errorf("data folder is required")
	}
	train, err = LoadCSV(folder, "train", suffix, batchSize, condDims)
	if err != nil {
		return nil, nil, nil, err
	}
	val, err = LoadCSV(folder, "valid", suffix, batchSize, condDims)
	if err != nil {
		return nil, nil, nil, err
	}
	test, err = LoadCSV(folder, "test", suffix, batchSize, condDims)
	if err != nil {
		return nil, nil, nil, err
	}
	return train, val, test, nil
}

// LoadCSV reads one split. The trajectory file starts with a header row
// "atoms,timesteps,dims"; every following row is one sample flattened in
// row-major [atom][timestep][dim] order.
func LoadCSV(folder, split, suffix string, batchSize, condDims int) (*SliceLoader, error) {
	trajPath := filepath.Join(folder, fmt.Sprintf("traj_%s_%s.csv", split, suffix))
	traj, err := readTrajectories(trajPath)
	if err != nil {
		return nil, err
	}

	var cond [][]float64
	if condDims > 0 {
		condPath := filepath.Join(folder, fmt.Sprintf("cond_%s_%s.csv", split, suffix))
		cond, err = readConditioning(condPath, condDims)
		if err != nil {
			return nil, err
		}
		if len(cond) != len(traj) {
			return nil, fmt.Errorf("%s: %d conditioning rows for %d trajectory samples", condPath, len(cond), len(traj))
		}
	}
	return NewSliceLoader(batchSize, traj, cond)
}

func readTrajectories(path string) ([][][][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	if len(header) != 3 {
		return nil, fmt.Errorf("%s: header must be atoms,timesteps,dims", path)
	}
	atoms, err := strconv.Atoi(header[0])
	if err != nil {
		return nil, fmt.Errorf("%s: bad atom count: %w", path, err)
	}
	timesteps, err := strconv.Atoi(header[1])
	if err != nil {
		return nil, fmt.Errorf("%s: bad timestep count: %w", path, err)
	}
	dims, err := strconv.Atoi(header[2])
	if err != nil {
		return nil, fmt.Errorf("%s: bad dim count: %w", path, err)
	}
	if atoms < 2 || timesteps < 2 || dims < 1 {
		return nil, fmt.Errorf("%s: invalid shape %dx%dx%d", path, atoms, timesteps, dims)
	}

	want := atoms * timesteps * dims
	var samples [][][][]float64
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", path, row, err)
		}
		row++
		if len(record) != want {
			return nil, fmt.Errorf("%s: row %d has %d values, want %d", path, row, len(record), want)
		}
		sample := make([][][]float64, atoms)
		idx := 0
		for i := 0; i < atoms; i++ {
			sample[i] = make([][]float64, timesteps)
			for t := 0; t < timesteps; t++ {
				frame := make([]float64, dims)
				for d := 0; d < dims; d++ {
					frame[d], err = strconv.ParseFloat(record[idx], 64)
					if err != nil {
						return nil, fmt.Errorf("%s: row %d col %d: %w", path, row, idx+1, err)
					}
					idx++
				}
				sample[i][t] = frame
			}
		}
		samples = append(samples, sample)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%s: no samples", path)
	}
	return samples, nil
}

func readConditioning(path string, condDims int) ([][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	var rows [][]float64
	rowNum := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", path, rowNum+1, err)
		}
		rowNum++
		if len(record) != condDims {
			return nil, fmt.Errorf("%s: row %d has %d values, want %d", path, rowNum, len(record), condDims)
		}
		values := make([]float64, condDims)
		for i, field := range record {
			values[i], err = strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: row %d col %d: %w", path, rowNum, i+1, err)
			}
		}
		rows = append(rows, values)
	}
	return rows, nil
}

// FirstFrameStats returns the per-dimension mean and standard deviation of
// the first frame across every sample the loader yields.
func FirstFrameStats(loader Loader) (mean, std []float64, err error) {
	loader.Reset()
	var sum, sumSq []float64
	count := 0
	for {
		batch, ok := loader.Next()
		if !ok {
			break
		}
		for _, sample := range batch.Traj {
			for _, atom := range sample {
				frame := atom[0]
				if sum == nil {
					sum = make([]float64, len(frame))
					sumSq = make([]float64, len(frame))
				}
				if len(frame) != len(sum) {
					return nil, nil, fmt.Errorf("inconsistent frame width: %d vs %d", len(frame), len(sum))
				}
				for d, v := range frame {
					sum[d] += v
					sumSq[d] += v * v
				}
				count++
			}
		}
	}
	if count == 0 {
		return nil, nil, fmt.Errorf("loader yielded no samples")
	}

	mean = make([]float64, len(sum))
	std = make([]float64, len(sum))
	for d := range sum {
		mean[d] = sum[d] / float64(count)
		variance := sumSq[d]/float64(count) - mean[d]*mean[d]
		if variance < 0 {
			variance = 0
		}
		std[d] = math.Sqrt(variance)
	}
	return mean, std, nil
}
