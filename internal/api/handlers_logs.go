package api

import (
	"archive/zip"
	"bufio"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mescon/tickr/internal/logger"
)

// recentLogLines is how many trailing log lines /logs/recent returns.
const recentLogLines = 100

func (s *RESTServer) handleDownloadLogs(c *gin.Context) {
	c.Header("Content-Disposition", "attachment; filename=tickr_logs.zip")
	c.Header("Content-Type", "application/zip")

	zipWriter := zip.NewWriter(c.Writer)
	defer zipWriter.Close()

	err := filepath.Walk(s.cfg.LogDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		// Use .txt extension for Windows compatibility
		baseName := filepath.Base(path)
		if strings.HasSuffix(baseName, ".log") {
			baseName = strings.TrimSuffix(baseName, ".log") + ".txt"
		}
		header.Name = baseName
		header.Method = zip.Deflate

		writer, err := zipWriter.CreateHeader(header)
		if err != nil {
			return err
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = io.Copy(writer, file)
		return err
	})

	if err != nil {
		logger.Errorf("Failed to zip logs: %v", err)
	}
}

func (s *RESTServer) handleRecentLogs(c *gin.Context) {
	file, err := os.Open(filepath.Join(s.cfg.LogDir, logger.LogFileName))
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusOK, []logger.LogEntry{})
			return
		}
		respondWithError(c, http.StatusInternalServerError, "Failed to read log file", err)
		return
	}
	defer file.Close()

	// ring buffer of the last recentLogLines lines
	lines := make([]string, 0, recentLogLines)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if len(lines) == recentLogLines {
			lines = lines[1:]
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		respondWithError(c, http.StatusInternalServerError, "Failed to scan log file", err)
		return
	}

	entries := make([]logger.LogEntry, 0, len(lines))
	for _, line := range lines {
		if entry, ok := parseLogLine(line); ok {
			entries = append(entries, entry)
		}
	}

	c.JSON(http.StatusOK, entries)
}

// parseLogLine splits "timestamp [LEVEL] message".
func parseLogLine(line string) (logger.LogEntry, bool) {
	if strings.TrimSpace(line) == "" {
		return logger.LogEntry{}, false
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 {
		return logger.LogEntry{}, false
	}
	return logger.LogEntry{
		Timestamp: parts[0],
		Level:     logger.LogLevel(strings.Trim(parts[1], "[]")),
		Message:   parts[2],
	}, true
}
