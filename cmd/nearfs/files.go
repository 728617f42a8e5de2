package main

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"nearfs.io/upload/model"
)

// collectFiles reads the named files. A file is named by its base name; a
// directory contributes every regular file below it, named relative to the
// directory's parent so the directory itself appears in the upload.
func collectFiles(args []string) ([]model.File, error) {
	var files []model.File
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, model.WrapError(model.KindConfiguration, err, "read input").WithName(arg)
		}
		base := filepath.Base(filepath.Clean(arg))
		if !info.IsDir() {
			data, err := os.ReadFile(arg)
			if err != nil {
				return nil, model.WrapError(model.KindConfiguration, err, "read input").WithName(arg)
			}
			files = append(files, model.File{Name: base, Content: data})
			continue
		}
		if base == "." || base == ".." || base == string(filepath.Separator) {
			// "nearfs upload acct ." uploads the contents, not a directory named ".".
			base = ""
		}
		err = filepath.WalkDir(arg, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if !d.Type().IsRegular() {
				log.Warnw("skipping non-regular file", "path", p)
				return nil
			}
			rel, err := filepath.Rel(arg, p)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			files = append(files, model.File{Name: path.Join(base, filepath.ToSlash(rel)), Content: data})
			return nil
		})
		if err != nil {
			return nil, model.WrapError(model.KindConfiguration, err, "read directory").WithName(arg)
		}
	}
	if len(files) == 0 {
		return nil, model.NewError(model.KindConfiguration, "no files to upload")
	}
	return files, nil
}
