// Copyright 2025 deepset GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package service

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SupportedFileTypes are the extensions the platform ingests. JSON files
// are only accepted as <name>.meta.json metadata sidecars.
var SupportedFileTypes = []string{
	".csv", ".docx", ".html", ".json", ".md", ".txt", ".pdf", ".pptx", ".xlsx", ".xml",
}

const metaSuffix = ".meta.json"

// collectPaths flattens files and directories into a list of file paths.
// Directories are expanded one level deep, or fully when recursive is set.
func collectPaths(paths []string, recursive bool) ([]string, error) {
	var filePaths []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			filePaths = append(filePaths, path)
			continue
		}

		if recursive {
			err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					filePaths = append(filePaths, p)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				filePaths = append(filePaths, filepath.Join(path, entry.Name()))
			}
		}
	}
	return filePaths, nil
}

// allowedFileTypes normalizes the desired extensions (lowercase, leading
// dot) and intersects them with SupportedFileTypes. An empty desired list
// allows every supported type.
func allowedFileTypes(desired []string) []string {
	if len(desired) == 0 {
		return SupportedFileTypes
	}

	normalized := make(map[string]bool, len(desired))
	for _, fileType := range desired {
		ext := strings.ToLower(fileType)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[ext] = true
	}

	var allowed []string
	for _, ext := range SupportedFileTypes {
		if normalized[ext] {
			allowed = append(allowed, ext)
		}
	}
	return allowed
}

// removeDuplicates keeps a single path per file name, preferring the most
// recently modified one.
func removeDuplicates(filePaths []string, logger *slog.Logger) []string {
	byName := make(map[string][]string)
	var order []string
	for _, path := range filePaths {
		name := filepath.Base(path)
		if _, seen := byName[name]; !seen {
			order = append(order, name)
		}
		byName[name] = append(byName[name], path)
	}

	var unique []string
	for _, name := range order {
		group := byName[name]
		if len(group) == 1 {
			unique = append(unique, group[0])
			continue
		}

		logger.Warn("multiple files with the same name found, keeping the most recent one", "file_name", name)
		newest := group[0]
		newestTime := modTime(newest)
		for _, path := range group[1:] {
			if t := modTime(path); t.After(newestTime) {
				newest, newestTime = path, t
			}
		}
		unique = append(unique, newest)
	}
	return unique
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// validateFilePaths is the fail-fast gate run before any network call.
// Every path must carry an allowed extension (or be a metadata sidecar),
// and every sidecar must name-match a raw file in the batch.
func validateFilePaths(filePaths []string) error {
	var invalid []string
	for _, path := range filePaths {
		if isMetaPath(path) {
			continue
		}
		// Plain JSON is only accepted as a metadata sidecar.
		if !hasSupportedSuffix(path) || strings.EqualFold(filepath.Ext(path), ".json") {
			invalid = append(invalid, path)
		}
	}
	if len(invalid) > 0 {
		return &ValidationError{
			Reason: "invalid file extension; metadata files must use the .meta.json suffix",
			Files:  invalid,
		}
	}

	rawNames := make(map[string]bool)
	for _, path := range filePaths {
		if !isMetaPath(path) {
			rawNames[strings.ToLower(filepath.Base(path))] = true
		}
	}

	var orphaned []string
	for _, path := range filePaths {
		if !isMetaPath(path) {
			continue
		}
		name := filepath.Base(path)
		raw := strings.ToLower(strings.TrimSuffix(name, metaSuffix))
		if !rawNames[raw] {
			orphaned = append(orphaned, name)
		}
	}
	if len(orphaned) > 0 {
		return &ValidationError{
			Reason: "metadata files without corresponding files were found; " +
				"map them like '<file_name>' and '<file_name>.meta.json', for example 'file1.txt' and 'file1.txt.meta.json'",
			Files: orphaned,
		}
	}
	return nil
}

func isMetaPath(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), metaSuffix)
}

func hasSupportedSuffix(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range SupportedFileTypes {
		if ext == supported {
			return true
		}
	}
	return false
}

// preprocessPaths expands, filters, deduplicates, and validates the input
// paths. It returns the set of paths to upload: raw files of an allowed
// type plus their metadata sidecars.
func (s *FilesService) preprocessPaths(paths []string, recursive bool, desiredFileTypes []string) ([]string, error) {
	allFiles, err := collectPaths(paths, recursive)
	if err != nil {
		return nil, err
	}

	allowed := allowedFileTypes(desiredFileTypes)

	keptRaw := make(map[string]bool)
	presentRaw := make(map[string]bool)
	var combined []string
	for _, path := range allFiles {
		if isMetaPath(path) {
			continue
		}
		name := strings.ToLower(filepath.Base(path))
		presentRaw[name] = true
		ext := strings.ToLower(filepath.Ext(path))
		for _, allowedExt := range allowed {
			if ext == allowedExt {
				combined = append(combined, path)
				keptRaw[name] = true
				break
			}
		}
	}
	for _, path := range allFiles {
		if !isMetaPath(path) {
			continue
		}
		raw := strings.TrimSuffix(strings.ToLower(filepath.Base(path)), metaSuffix)
		// A sidecar follows its raw file: dropped with it when the type is
		// filtered out, kept when the raw file has no match at all so the
		// validation gate rejects the orphan.
		if keptRaw[raw] || !presentRaw[raw] {
			combined = append(combined, path)
		}
	}

	combined = removeDuplicates(combined, s.logger)
	if len(combined) < len(allFiles) {
		s.logger.Warn("skipping files with unsupported file format",
			"skipped_files", len(allFiles)-len(combined))
	}

	if err := validateFilePaths(combined); err != nil {
		return nil, err
	}
	return combined, nil
}
