package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadEnvFile parses a .env-style file into KEY=VALUE entries suitable for a
// child process environment. Lines starting with '#' are comments; an
// optional leading "export " is tolerated; surrounding quotes are stripped.
// The daemon's own environment is never touched.
func ReadEnvFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	defer f.Close()

	var entries []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		i := strings.IndexByte(line, '=')
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		val := strings.TrimSpace(line[i+1:])
		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}
		entries = append(entries, key+"="+val)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
