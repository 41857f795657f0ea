package outputs

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/analyzer"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/pkg/fileutil"
)

/*
Responsibilities
- Append discovered URLs, regex matches, and emails to their configured
  sinks (or stdout, if unset).
- Mirror qualifying downloads under out_dir using a host/path layout.
- Decide download qualification and the binary-extension fetch skip.

All output is serialized under Outputs' single output lock -
LineWriter/BlobWriter implementations do not lock internally, they rely
on the caller holding it.
*/

// FileLineWriter appends a line plus "\n" to an *os.File. When a sink path
// is unset, NewFileLineWriter backs it with os.Stdout.
type FileLineWriter struct {
	file *os.File
}

// NewFileLineWriter opens path for append, creating it if necessary. An
// empty path yields a stdout-backed writer that Close never closes.
func NewFileLineWriter(path string) (*FileLineWriter, error) {
	if path == "" {
		return &FileLineWriter{file: os.Stdout}, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("outputs: open %q: %w", path, err)
	}
	return &FileLineWriter{file: f}, nil
}

func (w *FileLineWriter) WriteLine(line string) error {
	_, err := fmt.Fprintln(w.file, line)
	return err
}

// Close closes the underlying file, unless it is stdout.
func (w *FileLineWriter) Close() error {
	if w.file == os.Stdout {
		return nil
	}
	return w.file.Close()
}

// MirroredBlobWriter writes a download's body to a fully resolved path,
// creating intermediate directories via pkg/fileutil.EnsureDir.
type MirroredBlobWriter struct{}

func (MirroredBlobWriter) WriteBlob(path string, body []byte) error {
	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("outputs: ensure dir for %q: %w", path, err)
	}
	if err := os.WriteFile(path, body, 0644); err != nil {
		return fmt.Errorf("outputs: write %q: %w", path, err)
	}
	return nil
}

// ComputeDownloadPath mirrors a downloaded URL's path under outDir:
// <out_dir>/<host>/<path_dirs>/<last_segment>[?query][#fragment]. Path
// parameters need no special handling - Go's net/url keeps them as part of
// the last path segment already. A path with no segments (bare "/") falls
// back to "index.html", since a writable filename is still required.
func ComputeDownloadPath(outDir string, u url.URL) string {
	trimmed := strings.Trim(u.Path, "/")
	var segments []string
	if trimmed != "" {
		segments = strings.Split(trimmed, "/")
	}

	lastSegment := "index.html"
	dirSegments := segments
	if len(segments) > 0 {
		lastSegment = segments[len(segments)-1]
		dirSegments = segments[:len(segments)-1]
	}
	if u.RawQuery != "" {
		lastSegment += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		lastSegment += "#" + u.Fragment
	}

	parts := append([]string{outDir, u.Hostname()}, dirSegments...)
	parts = append(parts, lastSegment)
	return filepath.Join(parts...)
}

// resolveDirectoryCollision appends "/directory_content" when path already
// names an existing directory on disk.
func resolveDirectoryCollision(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, "directory_content")
	}
	return path
}

// Outputs aggregates the four output sinks behind one mutex.
type Outputs struct {
	mu sync.Mutex

	urlWriter   LineWriter
	regexWriter LineWriter
	emailWriter LineWriter
	blobWriter  BlobWriter

	outDir        string
	downloadParam DownloadParam

	metadataSink metadata.MetadataSink
}

func NewOutputs(
	urlWriter, regexWriter, emailWriter LineWriter,
	blobWriter BlobWriter,
	outDir string,
	downloadParam DownloadParam,
	metadataSink metadata.MetadataSink,
) *Outputs {
	return &Outputs{
		urlWriter:     urlWriter,
		regexWriter:   regexWriter,
		emailWriter:   emailWriter,
		blobWriter:    blobWriter,
		outDir:        outDir,
		downloadParam: downloadParam,
		metadataSink:  metadataSink,
	}
}

// RecordURL appends a successfully fetched page's URL to out_urls.
func (o *Outputs) RecordURL(u url.URL) error {
	if o.urlWriter == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	line := u.String()
	if err := o.urlWriter.WriteLine(line); err != nil {
		return err
	}
	o.metadataSink.RecordArtifact(metadata.ArtifactKindURL, line, nil)
	return nil
}

// RecordRegexMatch appends one "<url>:<line>: <match>" record to out_regex.
func (o *Outputs) RecordRegexMatch(match analyzer.RegexMatch) error {
	if o.regexWriter == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	line := fmt.Sprintf("%s:%d: %s", match.URL, match.Line, match.Match)
	if err := o.regexWriter.WriteLine(line); err != nil {
		return err
	}
	o.metadataSink.RecordArtifact(metadata.ArtifactKindRegexMatch, line, []metadata.Attribute{
		metadata.NewAttr(metadata.AttrURL, match.URL),
	})
	return nil
}

// RecordEmail appends one "<name> <<address>>" record to out_emails. When
// the name is the address itself (no email_names pairing configured), the
// line is just the bare address.
func (o *Outputs) RecordEmail(sourceURL url.URL, email analyzer.EmailMatch) error {
	if o.emailWriter == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	line := email.Address
	if email.Name != "" && email.Name != email.Address {
		line = fmt.Sprintf("%s <%s>", email.Name, email.Address)
	}
	if err := o.emailWriter.WriteLine(line); err != nil {
		return err
	}
	o.metadataSink.RecordArtifact(metadata.ArtifactKindEmail, line, []metadata.Attribute{
		metadata.NewAttr(metadata.AttrURL, sourceURL.String()),
	})
	return nil
}

// ShouldSkipFetch implements the binary-extension short-circuit: true
// means the Fetcher must not even issue the GET.
func (o *Outputs) ShouldSkipFetch(sourceURL url.URL) bool {
	if !o.downloadParam.SelectiveDownloadEnabled() {
		return false
	}
	if o.downloadParam.Qualifies(sourceURL.Path) {
		return false
	}
	return IsBinaryExtension(sourceURL.Path)
}

// MaybeDownload writes body to the mirrored download path when the URL
// qualifies, reporting whether it wrote anything.
func (o *Outputs) MaybeDownload(sourceURL url.URL, body []byte) (bool, error) {
	if o.blobWriter == nil || !o.downloadParam.Qualifies(sourceURL.Path) {
		return false, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	path := resolveDirectoryCollision(ComputeDownloadPath(o.outDir, sourceURL))
	if err := o.blobWriter.WriteBlob(path, body); err != nil {
		o.metadataSink.RecordError(
			time.Now(),
			"outputs",
			"Outputs.MaybeDownload",
			metadata.CauseStorageFailure,
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, sourceURL.String()),
				metadata.NewAttr(metadata.AttrWritePath, path),
			},
		)
		return false, err
	}

	o.metadataSink.RecordArtifact(metadata.ArtifactKindDownload, path, []metadata.Attribute{
		metadata.NewAttr(metadata.AttrURL, sourceURL.String()),
	})
	return true, nil
}
