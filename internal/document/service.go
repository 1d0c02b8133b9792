package document

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// FileInfo describes one PDF file in the configured directory.
type FileInfo struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

// Service handles access to the PDF files of the configured directory.
// Every path handed to callers is resolved and checked to stay inside
// that directory.
type Service struct {
	dir         string
	maxFileSize int64
	logger      *slog.Logger
}

// NewService creates a document service rooted at dir.
func NewService(dir string, maxFileSize int64, logger *slog.Logger) (*Service, error) {
	if dir == "" {
		return nil, fmt.Errorf("document directory cannot be empty")
	}
	if maxFileSize <= 0 {
		return nil, fmt.Errorf("maxFileSize must be greater than 0")
	}
	if logger == nil {
		logger = slog.Default()
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document directory: %w", err)
	}

	return &Service{
		dir:         absDir,
		maxFileSize: maxFileSize,
		logger:      logger,
	}, nil
}

// Dir returns the configured document directory.
func (s *Service) Dir() string {
	return s.dir
}

// MaxFileSize returns the per-file size limit in bytes.
func (s *Service) MaxFileSize() int64 {
	return s.maxFileSize
}

// Resolve turns a file name into an absolute path inside the configured
// directory. Names that escape the directory are rejected.
func (s *Service) Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("file name cannot be empty")
	}
	if strings.ContainsRune(name, '\x00') {
		return "", fmt.Errorf("file name contains invalid characters")
	}

	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	within, err := s.isPathWithinDir(absPath)
	if err != nil {
		return "", fmt.Errorf("path validation failed: %w", err)
	}
	if !within {
		return "", fmt.Errorf("path is outside configured directory: %s", name)
	}

	return absPath, nil
}

// isPathWithinDir checks containment after cleaning and symlink
// resolution, so that ".." segments and links cannot escape.
func (s *Service) isPathWithinDir(path string) (bool, error) {
	cleanPath := filepath.Clean(path)

	realPath := cleanPath
	if info, err := os.Lstat(cleanPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if resolved, err := filepath.EvalSymlinks(cleanPath); err == nil {
			realPath = resolved
		}
	}

	realDir := s.dir
	if resolved, err := filepath.EvalSymlinks(s.dir); err == nil {
		realDir = resolved
	}

	dirWithSep := s.dir + string(filepath.Separator)
	realDirWithSep := realDir + string(filepath.Separator)

	pathOk := strings.HasPrefix(cleanPath, dirWithSep) || cleanPath == s.dir ||
		strings.HasPrefix(cleanPath, realDirWithSep) || cleanPath == realDir
	realPathOk := strings.HasPrefix(realPath, dirWithSep) || realPath == s.dir ||
		strings.HasPrefix(realPath, realDirWithSep) || realPath == realDir

	return pathOk && realPathOk, nil
}

// Validate performs the full readiness check on a PDF file: existence,
// regular file, extension, size bounds and a trial open.
func (s *Service) Validate(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	fileInfo, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return fmt.Errorf("cannot access file: %w", err)
	}

	if err := s.validateFileInfo(path, fileInfo); err != nil {
		return err
	}

	f, _, err := pdf.Open(path)
	if err != nil {
		return fmt.Errorf("invalid PDF file: %w", err)
	}
	defer f.Close()

	return nil
}

// validateFileInfo checks file metadata without opening the PDF.
func (s *Service) validateFileInfo(path string, fileInfo os.FileInfo) error {
	if fileInfo.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if !isPDFFile(path) {
		return fmt.Errorf("file is not a PDF: %s", path)
	}
	if fileInfo.Size() == 0 {
		return fmt.Errorf("file is empty: %s", path)
	}
	if fileInfo.Size() > s.maxFileSize {
		return fmt.Errorf("file too large: %d bytes (max: %d bytes)",
			fileInfo.Size(), s.maxFileSize)
	}
	return nil
}

// List returns the PDF files of the configured directory, sorted by
// name. A non-empty query filters by fuzzy filename match.
func (s *Service) List(query string) ([]FileInfo, error) {
	if _, err := os.Stat(s.dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("directory does not exist: %s", s.dir)
	}

	query = strings.ToLower(strings.TrimSpace(query))
	files := []FileInfo{}

	err := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // Intentionally continue on file errors
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != s.dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !isPDFFile(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr // Intentionally continue on file errors
		}
		if err := s.validateFileInfo(path, info); err != nil {
			return nil //nolint:nilerr // Skip invalid files but continue processing
		}
		if query != "" && !matchesQuery(d.Name(), query) {
			return nil
		}

		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			rel = d.Name()
		}
		files = append(files, FileInfo{
			Name:         rel,
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format("2006-01-02 15:04:05"),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// isPDFFile checks if a file has a PDF extension.
func isPDFFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}

// matchesQuery performs fuzzy matching on the filename: substring match
// first, then all query words found among filename words.
func matchesQuery(filename, query string) bool {
	name := strings.ToLower(filename)
	if strings.Contains(name, query) {
		return true
	}

	nameWords := splitIntoWords(strings.TrimSuffix(name, ".pdf"))
	for _, queryWord := range splitIntoWords(query) {
		found := false
		for _, word := range nameWords {
			if strings.Contains(word, queryWord) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// splitIntoWords splits a string into words using common separators.
func splitIntoWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case ' ', '_', '-', '.', '(', ')', '[', ']':
			return true
		}
		return false
	})
}
