package uafile

/*
Package uafile loads the newline-delimited user-agent list named by
user_agent_file and picks one entry uniformly at random per run. It is
only consulted when user_agent_file is set and user_agent itself is not -
an explicit user_agent always wins.
*/

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
)

// Load reads path, one user-agent string per line. Blank lines (and lines
// that are only whitespace) are skipped; entries are returned in file order.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("uafile: failed to open %q: %w", path, err)
	}
	defer f.Close()

	var agents []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		agents = append(agents, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("uafile: failed to read %q: %w", path, err)
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("uafile: %q contains no user-agent entries", path)
	}
	return agents, nil
}

// PickRandom returns one entry chosen uniformly at random from agents using
// rng. Callers construct rng from the run's random_seed so the pick is
// reproducible the same way base_delay jitter is.
func PickRandom(agents []string, rng *rand.Rand) string {
	if len(agents) == 0 {
		return ""
	}
	return agents[rng.Intn(len(agents))]
}

// LoadAndPick is the one-call convenience the CLI wiring uses: load path,
// then pick one entry at random using a seed derived from randomSeed.
func LoadAndPick(path string, randomSeed int64) (string, error) {
	agents, err := Load(path)
	if err != nil {
		return "", err
	}
	return PickRandom(agents, rand.New(rand.NewSource(randomSeed))), nil
}
