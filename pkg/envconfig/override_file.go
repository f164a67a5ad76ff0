package envconfig

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/core-tools/hsu-bootstrap/pkg/errors"
)

const (
	exportPrefix      = "export "
	maxOverrideLine   = 1024 * 1024
	utf8ByteOrderMark = "\ufeff"
)

// Assignment is one KEY=VALUE pair taken from an override file
type Assignment struct {
	Key   string
	Value string
	Line  int
}

// ParseOverrideLine parses a single override-file line.
// It reports false for blank lines, comments and lines without '='.
func ParseOverrideLine(line string) (Assignment, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Assignment{}, false
	}

	// Trailing comments need a space before the marker, so URLs like a#b survive
	line = cutAt(line, " #")
	line = cutAt(line, " //")
	line = strings.TrimSpace(line)

	if strings.HasPrefix(line, exportPrefix) {
		line = strings.TrimSpace(line[len(exportPrefix):])
	}

	key, value, found := strings.Cut(line, "=")
	if !found {
		return Assignment{}, false
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return Assignment{}, false
	}

	return Assignment{
		Key:   key,
		Value: unquote(strings.TrimSpace(value)),
	}, true
}

// ParseOverrides parses every line of r. Malformed lines, including lines
// longer than maxOverrideLine, are skipped.
func ParseOverrides(r io.Reader) ([]Assignment, error) {
	reader := bufio.NewReaderSize(r, 64*1024)

	var assignments []Assignment
	lineNumber := 0
	for {
		line, tooLong, err := readOverrideLine(reader)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		lineNumber++
		if tooLong {
			continue
		}
		if lineNumber == 1 {
			line = strings.TrimPrefix(line, utf8ByteOrderMark)
		}

		assignment, ok := ParseOverrideLine(line)
		if !ok {
			continue
		}
		assignment.Line = lineNumber
		assignments = append(assignments, assignment)
	}

	return assignments, nil
}

// readOverrideLine returns the next line without its ending. A line over
// maxOverrideLine is consumed and reported with tooLong set.
func readOverrideLine(reader *bufio.Reader) (string, bool, error) {
	var line []byte
	tooLong := false
	for {
		chunk, isPrefix, err := reader.ReadLine()
		if err != nil {
			if err == io.EOF && (len(line) > 0 || tooLong) {
				return string(line), tooLong, nil
			}
			return "", false, err
		}
		if !tooLong {
			if len(line)+len(chunk) > maxOverrideLine {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if !isPrefix {
			return string(line), tooLong, nil
		}
	}
}

// ReadOverrideFile parses the override file at path. A missing file is not an
// error and reports found=false; any other failure is a config read error.
func ReadOverrideFile(path string) (assignments []Assignment, found bool, err error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.NewConfigReadError("failed to open override file", err).WithContext("path", path)
	}
	defer file.Close()

	assignments, err = ParseOverrides(file)
	if err != nil {
		return nil, true, errors.NewConfigReadError("failed to read override file", err).WithContext("path", path)
	}

	return assignments, true, nil
}

func cutAt(line, marker string) string {
	if before, _, found := strings.Cut(line, marker); found {
		return before
	}
	return line
}

// unquote strips one matching pair of surrounding single or double quotes
func unquote(value string) string {
	if len(value) < 2 {
		return value
	}
	first, last := value[0], value[len(value)-1]
	if first == last && (first == '"' || first == '\'') {
		return value[1 : len(value)-1]
	}
	return value
}
