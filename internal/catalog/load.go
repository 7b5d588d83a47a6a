package catalog

import (
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/reljoin/internal/ir"
)

// Load loads a catalog from the CUE package in dir.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func Load(dir string, mode LoadMode) (*Catalog, []error) {
	// Verify directory exists
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{newError(ErrCodeNotFound, token.NoPos, "catalog directory not found: %s", dir)}
	}
	if err != nil {
		return nil, []error{newError(ErrCodeNotFound, token.NoPos, "error accessing catalog directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, []error{newError(ErrCodeNotFound, token.NoPos, "not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{newError(ErrCodeScanError, token.NoPos, "error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, []error{newError(ErrCodeNoFiles, token.NoPos, "no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{newError(ErrCodeLoadFailed, token.NoPos, "no CUE instances loaded")}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{formatCUEError(ErrCodeLoadFailed, inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(ErrCodeBuildFailed, err)}
	}

	cat, errs := FromValue(value, mode)
	if cat != nil {
		cat.FileCount = len(cueFiles)
	}
	return cat, errs
}

// LoadSource compiles a single CUE document. filename only labels positions.
func LoadSource(src, filename string, mode LoadMode) (*Catalog, []error) {
	value := cuecontext.New().CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(ErrCodeBuildFailed, err)}
	}
	cat, errs := FromValue(value, mode)
	if cat != nil {
		cat.FileCount = 1
	}
	return cat, errs
}

// FromValue extracts tables and then associations from a built CUE value.
// Associations naming a table that failed to compile report ErrCodeUnknownTable.
func FromValue(value cue.Value, mode LoadMode) (*Catalog, []error) {
	var errs []error
	cat := &Catalog{}

	fail := func(err error) bool {
		errs = append(errs, err)
		return mode == LoadModeFailFast
	}

	tables := make(map[string]ir.Table)
	if tablesVal := value.LookupPath(cue.ParsePath("table")); tablesVal.Exists() {
		iter, err := tablesVal.Fields()
		if err != nil {
			if fail(newError(ErrCodeGeneric, tablesVal.Pos(), "iterating tables: %v", err)) {
				return cat, errs
			}
		} else {
			for iter.Next() {
				t, err := CompileTable(iter.Value())
				if err != nil {
					if fail(err) {
						return cat, errs
					}
					continue
				}
				tables[t.Name] = t
				cat.Tables = append(cat.Tables, t)
			}
		}
	}

	if assocVal := value.LookupPath(cue.ParsePath("association")); assocVal.Exists() {
		iter, err := assocVal.Fields()
		if err != nil {
			if fail(newError(ErrCodeGeneric, assocVal.Pos(), "iterating associations: %v", err)) {
				return cat, errs
			}
		} else {
			for iter.Next() {
				a, err := CompileAssociation(iter.Value(), tables)
				if err != nil {
					if fail(err) {
						return cat, errs
					}
					continue
				}
				cat.Associations = append(cat.Associations, a)
			}
		}
	}

	if len(errs) == 0 && len(cat.Tables) == 0 {
		errs = append(errs, newError(ErrCodeEmpty, value.Pos(), "catalog declares no tables"))
	}
	return cat, errs
}

// FindCUEFiles returns all .cue files in dir (non-recursive).
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}
