// Package universe resolves the different ways an operator can name a batch
// of symbols — an explicit list, a file on disk, or a curated built-in
// token — into a plain []string ready for the orchestrator.
package universe

import (
	"bufio"
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
)

//go:embed data/dow30.txt data/sp500_sample.txt
var data embed.FS

// ErrUniverseRequiresExternalProvider is returned by FromCuratedToken for a
// token this tool recognizes by name but does not ship data for — the full
// S&P 500 constituent list, a broker-specific watchlist, or a full index
// family require a licensed or externally maintained data source.
var ErrUniverseRequiresExternalProvider = errors.New("universe: this token requires an external data provider")

var curated = map[string]string{
	"dow30":        "data/dow30.txt",
	"sp500-sample": "data/sp500_sample.txt",
}

var externalOnly = map[string]bool{
	"sp500-full":   true,
	"broker-list":  true,
	"indices-full": true,
}

// FromSymbols returns the given symbols verbatim, trimmed of whitespace and
// with blanks removed.
func FromSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FromFile reads one symbol per line from path, skipping blank lines and
// lines beginning with '#'.
func FromFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open symbol file %s: %w", path, err)
	}
	defer f.Close()
	return parseLines(f)
}

// FromCuratedToken resolves a built-in universe name (e.g. "dow30") to its
// embedded symbol list. Tokens this tool recognizes but cannot serve locally
// return ErrUniverseRequiresExternalProvider.
func FromCuratedToken(token string) ([]string, error) {
	if externalOnly[token] {
		return nil, fmt.Errorf("%w: %q", ErrUniverseRequiresExternalProvider, token)
	}
	path, ok := curated[token]
	if !ok {
		return nil, fmt.Errorf("universe: unknown token %q", token)
	}
	f, err := data.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded universe %q: %w", token, err)
	}
	defer f.Close()
	return parseLines(f)
}

func parseLines(f interface{ Read([]byte) (int, error) }) ([]string, error) {
	scanner := bufio.NewScanner(f)
	var out []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read symbol list: %w", err)
	}
	return out, nil
}
