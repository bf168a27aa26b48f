package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/dpr-analyzer/internal/common"
)

// ResolvedBy records which strategy located the output pair. Kept on the
// artifact for diagnostics and for regression-testing the external tool's
// naming behavior.
type ResolvedBy string

const (
	ResolvedExactMatch    ResolvedBy = "EXACT_MATCH"
	ResolvedOriginalName  ResolvedBy = "ORIGINAL_NAME_MATCH"
	ResolvedDirectoryScan ResolvedBy = "DIRECTORY_SCAN"
)

type resolution struct {
	TxtPath  string
	JSONPath string
	By       ResolvedBy
}

// resolveOutputs locates the .txt/.json pair the extractor wrote into
// outputDir. The tool's naming is not contractually tied to the input name,
// so resolution falls back in order:
//
//  1. base name of the stored file (which carries the collision suffix)
//  2. base name of the original user-supplied file
//  3. directory scan: accept a single unambiguous pair, most recently
//     modified pair if several and recency is decisive
//
// Both files must resolve together; a lone .txt or .json is a failure, never
// a partial success.
func resolveOutputs(outputDir, storedBase, originalBase string) (resolution, error) {
	if r, ok := pairByBase(outputDir, storedBase); ok {
		r.By = ResolvedExactMatch
		return r, nil
	}
	if originalBase != "" && originalBase != storedBase {
		if r, ok := pairByBase(outputDir, originalBase); ok {
			r.By = ResolvedOriginalName
			return r, nil
		}
	}
	return scanForPair(outputDir)
}

func pairByBase(dir, base string) (resolution, bool) {
	txt := filepath.Join(dir, base+".txt")
	jsn := filepath.Join(dir, base+".json")
	if fileExists(txt) && fileExists(jsn) {
		return resolution{TxtPath: txt, JSONPath: jsn}, true
	}
	return resolution{}, false
}

// scanForPair is the last resort. Candidate pairs are .txt/.json entries
// sharing a base name; with no shared names, exactly one of each still
// counts as a pair. Multiple pairs are only accepted when modification time
// picks a strict winner — guessing between equally plausible outputs is a
// hard failure.
func scanForPair(dir string) (resolution, error) {
	txts, err := entriesByExt(dir, ".txt")
	if err != nil {
		return resolution{}, common.NewAppError("ARTIFACT_SCAN", "list output directory", err)
	}
	jsns, err := entriesByExt(dir, ".json")
	if err != nil {
		return resolution{}, common.NewAppError("ARTIFACT_SCAN", "list output directory", err)
	}

	if len(txts) == 0 || len(jsns) == 0 {
		return resolution{}, fmt.Errorf("%w: output dir has %d .txt and %d .json files",
			common.ErrArtifactResolution, len(txts), len(jsns))
	}

	var pairs []resolution
	for base, txt := range txts {
		if jsn, ok := jsns[base]; ok {
			pairs = append(pairs, resolution{TxtPath: txt, JSONPath: jsn, By: ResolvedDirectoryScan})
		}
	}

	switch {
	case len(pairs) == 1:
		return pairs[0], nil
	case len(pairs) == 0 && len(txts) == 1 && len(jsns) == 1:
		// Unmatched names but only one of each: unambiguous.
		return resolution{
			TxtPath:  firstValue(txts),
			JSONPath: firstValue(jsns),
			By:       ResolvedDirectoryScan,
		}, nil
	case len(pairs) > 1:
		if r, ok := newestPair(pairs); ok {
			return r, nil
		}
		return resolution{}, fmt.Errorf("%w: %d candidate pairs with no recency winner",
			common.ErrArtifactResolution, len(pairs))
	default:
		return resolution{}, fmt.Errorf("%w: %d .txt and %d .json files with no matching pair",
			common.ErrArtifactResolution, len(txts), len(jsns))
	}
}

// newestPair returns the pair whose newest member is strictly more recent
// than every other pair's. A tie means no recency signal.
func newestPair(pairs []resolution) (resolution, bool) {
	best := -1
	var bestAt time.Time
	tie := false
	for i, p := range pairs {
		at := pairMtime(p)
		switch {
		case best == -1 || at.After(bestAt):
			best, bestAt, tie = i, at, false
		case at.Equal(bestAt):
			tie = true
		}
	}
	if best == -1 || tie {
		return resolution{}, false
	}
	return pairs[best], true
}

func pairMtime(p resolution) time.Time {
	var at time.Time
	for _, f := range []string{p.TxtPath, p.JSONPath} {
		if fi, err := os.Stat(f); err == nil && fi.ModTime().After(at) {
			at = fi.ModTime()
		}
	}
	return at
}

// entriesByExt maps base name -> full path for regular files with the given
// extension (case-insensitive).
func entriesByExt(dir, ext string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.EqualFold(filepath.Ext(name), ext) {
			continue
		}
		base := strings.TrimSuffix(name, filepath.Ext(name))
		out[base] = filepath.Join(dir, name)
	}
	return out, nil
}

func firstValue(m map[string]string) string {
	for _, v := range m {
		return v
	}
	return ""
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
