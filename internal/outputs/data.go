package outputs

import (
	"path/filepath"
	"regexp"
	"strings"
)

// LineWriter appends one line to an output sink. Implementations must be
// safe to call from the Outputs aggregate's single output lock - they do
// not need their own synchronization.
type LineWriter interface {
	WriteLine(line string) error
}

// BlobWriter writes a downloaded file's raw body to path, creating any
// intermediate directories. path is already fully resolved (mirrored
// layout, directory-collision suffix already applied) by the caller.
type BlobWriter interface {
	WriteBlob(path string, body []byte) error
}

// DownloadParam carries the compiled download-qualification configuration.
// Regexes are compiled by CompileDownloadRegexes, which anchors and
// case-folds them for a Python re.match-style, case-insensitive match.
type DownloadParam struct {
	Extensions []string
	Regexes    []*regexp.Regexp
	Within     []string
}

// CompileDownloadRegexes compiles download_regexes with an implicit
// case-insensitive start anchor, matching Python's re.match semantics for
// this option.
func CompileDownloadRegexes(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)\A(?:` + p + `)`)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// SelectiveDownloadEnabled reports whether any of the three qualification
// rules is configured. When none is, every download qualifies - and the
// binary-extension short-circuit never applies.
func (p DownloadParam) SelectiveDownloadEnabled() bool {
	return len(p.Extensions) > 0 || len(p.Regexes) > 0 || len(p.Within) > 0
}

// Qualifies implements the download qualification rule: with no rule
// configured everything qualifies; otherwise qualify on any single match
// among extension, regex, or path-prefix.
func (p DownloadParam) Qualifies(path string) bool {
	if !p.SelectiveDownloadEnabled() {
		return true
	}

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	for _, e := range p.Extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}

	for _, re := range p.Regexes {
		if re.MatchString(path) {
			return true
		}
	}

	trimmed := strings.TrimPrefix(path, "/")
	for _, prefix := range p.Within {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}

	return false
}

// binaryExtensions is the binary-extension skip list, case-sensitive as
// written.
var binaryExtensions = buildExtensionSet([]string{
	"3dm", "3ds", "3g2", "3gp", "7z", "a", "aac", "adp", "ai", "aif", "aiff",
	"alz", "ape", "apk", "ar", "arj", "asf", "au", "avi", "bak", "baml", "bh",
	"bin", "bk", "bmp", "btif", "bz2", "bzip2", "cab", "caf", "cgm", "class",
	"cmx", "cpio", "cr2", "cur", "dat", "dcm", "deb", "dex", "djvu", "dll",
	"dmg", "dng", "doc", "docm", "docx", "dot", "dotm", "dra", "DS_Store",
	"dsk", "dts", "dtshd", "dvb", "dwg", "dxf", "ecelp4800", "ecelp7470",
	"ecelp9600", "egg", "eol", "eot", "epub", "exe", "f4v", "fbs", "fh",
	"fla", "flac", "fli", "flv", "fpx", "fst", "fvt", "g3", "gh", "gif",
	"graffle", "gz", "gzip", "h261", "h263", "h264", "icns", "ico", "ief",
	"img", "ipa", "iso", "jar", "jpeg", "jpg", "jpgv", "jpm", "jxr", "key",
	"ktx", "lha", "lib", "lvp", "lz", "lzh", "lzma", "lzo", "m3u", "m4a",
	"m4v", "mar", "mdi", "mht", "mid", "midi", "mj2", "mka", "mkv", "mmr",
	"mng", "mobi", "mov", "movie", "mp3", "mp4", "mp4a", "mpeg", "mpg",
	"mpga", "mxu", "nef", "npx", "numbers", "nupkg", "o", "oga", "ogg",
	"ogv", "otf", "pages", "pbm", "pcx", "pdb", "pdf", "pea", "pgm", "pic",
	"png", "pnm", "pot", "potm", "potx", "ppa", "ppam", "ppm", "pps",
	"ppsm", "ppsx", "ppt", "pptm", "pptx", "psd", "pya", "pyc", "pyo",
	"pyv", "qt", "rar", "ras", "raw", "resources", "rgb", "rip", "rlc",
	"rmf", "rmvb", "rtf", "rz", "s3m", "s7z", "scpt", "sgi", "shar", "sil",
	"sketch", "slk", "smv", "snk", "so", "stl", "suo", "sub", "swf", "tar",
	"tbz", "tbz2", "tga", "tgz", "thmx", "tif", "tiff", "tlz", "ttc", "ttf",
	"txz", "udf", "uvh", "uvi", "uvm", "uvp", "uvs", "uvu", "viv", "vob",
	"war", "wav", "wax", "wbmp", "wdp", "weba", "webm", "webp", "whl",
	"wim", "wm", "wma", "wmv", "wmx", "woff", "woff2", "wrm", "wvx", "xbm",
	"xif", "xla", "xlam", "xls", "xlsb", "xlsm", "xlsx", "xlt", "xltm",
	"xltx", "xm", "xmind", "xpi", "xpm", "xwd", "xz", "z", "zip", "zipx",
})

func buildExtensionSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		set[e] = true
	}
	return set
}

// IsBinaryExtension reports whether path's extension is in the
// binary-extension skip list.
func IsBinaryExtension(path string) bool {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	return binaryExtensions[ext]
}
