package task

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hoxforge/hox/internal/herr"
	"github.com/hoxforge/hox/internal/vcs"
)

// atomicWrite writes data to path via a temp file in the same directory
// followed by rename, so readers never observe a partially written file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return herr.Wrap(herr.KindIo, err, "create directory "+dir)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return herr.Wrap(herr.KindIo, err, "create temp file in "+dir)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return herr.Wrap(herr.KindIo, err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return herr.Wrap(herr.KindIo, err, "close temp file")
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return herr.Wrap(herr.KindIo, err, "rename into place: "+path)
	}

	return nil
}

// ReadTask reads and validates a task JSON file.
func ReadTask(path string) (*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, herr.Wrap(herr.KindNotFound, err, path)
		}
		return nil, herr.Wrap(herr.KindIo, err, "read "+path)
	}

	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, herr.Wrap(herr.KindParse, err, "parse "+path)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// WriteTask validates and writes a task to dir/{id}.json, atomically.
func WriteTask(dir string, t *Task) error {
	if err := t.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return herr.Wrap(herr.KindIo, err, "marshal task "+t.ID)
	}

	return atomicWrite(filepath.Join(dir, t.Filename()), data)
}

// DeleteTask removes dir/{id}.json. Idempotent: absence is not an error.
func DeleteTask(dir, id string) error {
	if err := vcs.ValidateIdentifier(id); err != nil {
		return err
	}
	path := filepath.Join(dir, id+".json")
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return herr.Wrap(herr.KindIo, err, "delete "+path)
	}
	return nil
}

// ListTasks reads every *.json file in dir. Unreadable or invalid files are
// skipped rather than aborting the whole listing, so one corrupt file can't
// take down the reconciler's startup scan.
func ListTasks(dir string) ([]*Task, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, herr.Wrap(herr.KindIo, err, "read directory "+dir)
	}

	var tasks []*Task
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		t, err := ReadTask(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// ReadDep reads and validates a dependency JSON file.
func ReadDep(path string) (*Dep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, herr.Wrap(herr.KindNotFound, err, path)
		}
		return nil, herr.Wrap(herr.KindIo, err, "read "+path)
	}

	var d Dep
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, herr.Wrap(herr.KindParse, err, "parse "+path)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// WriteDep validates and writes a dependency to
// dir/{from}--{type}--{to}.json, atomically.
func WriteDep(dir string, d *Dep) error {
	if err := d.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return herr.Wrap(herr.KindIo, err, fmt.Sprintf("marshal dep %s->%s", d.From, d.To))
	}

	return atomicWrite(filepath.Join(dir, d.Filename()), data)
}

// DeleteDep removes dir/{from}--{type}--{to}.json. Idempotent: absence is
// not an error.
func DeleteDep(dir, from, typ, to string) error {
	path := filepath.Join(dir, fmt.Sprintf("%s--%s--%s.json", from, typ, to))
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return herr.Wrap(herr.KindIo, err, "delete "+path)
	}
	return nil
}

// ListDeps reads every *.json file in dir.
func ListDeps(dir string) ([]*Dep, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, herr.Wrap(herr.KindIo, err, "read directory "+dir)
	}

	var deps []*Dep
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		d, err := ReadDep(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		deps = append(deps, d)
	}
	return deps, nil
}

// DepsForTask returns every dependency file involving id, as either from or to.
func DepsForTask(dir, id string) ([]*Dep, error) {
	all, err := ListDeps(dir)
	if err != nil {
		return nil, err
	}
	var matched []*Dep
	for _, d := range all {
		if d.From == id || d.To == id {
			matched = append(matched, d)
		}
	}
	return matched, nil
}
