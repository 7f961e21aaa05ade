// Package sysinfo reports host and storage figures for the dev-admin status page.
package sysinfo

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Metrics represents the API host state for API responses
type Metrics struct {
	CPUCount      int     `json:"cpu_count"`
	Goroutines    int     `json:"goroutines"`
	GoVersion     string  `json:"go_version"`
	MemoryTotalGB float64 `json:"memory_total_gb"` // Zero when /proc/meminfo is unavailable
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryFreeGB  float64 `json:"memory_free_gb"`
	HeapAllocMB   float64 `json:"heap_alloc_mb"`
	UploadFiles   int     `json:"upload_files"`
	UploadsMB     float64 `json:"uploads_mb"`
}

// GetMetrics returns process, memory and upload directory figures
func GetMetrics(ctx context.Context, uploadDir string) (Metrics, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	metrics := Metrics{
		CPUCount:    runtime.NumCPU(),
		Goroutines:  runtime.NumGoroutine(),
		GoVersion:   runtime.Version(),
		HeapAllocMB: float64(mem.HeapAlloc) / (1024 * 1024),
	}

	// Memory info is Linux only; elsewhere the fields stay zero
	if err := getMemoryInfo("/proc/meminfo", &metrics); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return metrics, fmt.Errorf("failed to get memory info: %w", err)
	}

	if err := getUploadInfo(ctx, uploadDir, &metrics); err != nil {
		return metrics, fmt.Errorf("failed to get upload info: %w", err)
	}

	return metrics, nil
}

// getMemoryInfo reads memory information from a meminfo file
func getMemoryInfo(path string, metrics *Metrics) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var memTotal, memAvailable float64
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			memTotal = value / (1024 * 1024) // KB to GB
		case strings.HasPrefix(line, "MemAvailable:"):
			memAvailable = value / (1024 * 1024) // KB to GB
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading %s: %w", path, err)
	}

	metrics.MemoryTotalGB = memTotal
	metrics.MemoryFreeGB = memAvailable
	metrics.MemoryUsedGB = memTotal - memAvailable
	return nil
}

// getUploadInfo counts the files under dir and their total size
func getUploadInfo(ctx context.Context, dir string, metrics *Metrics) error {
	if dir == "" {
		return nil
	}

	var files int
	var size int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files++
		size += info.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil // Nothing uploaded yet
	}
	if err != nil {
		return err
	}

	metrics.UploadFiles = files
	metrics.UploadsMB = float64(size) / (1024 * 1024)
	return nil
}
