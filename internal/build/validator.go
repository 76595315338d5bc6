package build

import (
	"crypto/subtle"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// ValidationError is a rejected submission. Its message is shown to clients as is.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func reject(format string, a ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, a...)}
}

var appNameRegexp = regexp.MustCompile(`^[A-Za-z0-9 ]+$`)

// minFiles is the smallest project the toolchain accepts.
const minFiles = 2

type Validator struct {
	Toolchains Toolchains // required
	UserToken  string     // required
}

// Validate checks req and returns a normalized copy of it.
// Checks run in a fixed order and the first failing one is reported
// as a *ValidationError.
func (v *Validator) Validate(req *Request) (*Request, error) {
	if req.SDKVersion == "" {
		return nil, reject(`Missing "sdkVersion".`)
	}
	if _, ok := v.Toolchains.Lookup(req.SDKVersion); !ok {
		return nil, reject(`Unknown sdkVersion "%s".`, req.SDKVersion)
	}

	if req.Files == nil {
		return nil, reject(`Missing "files".`)
	}
	if len(req.Files) < minFiles {
		return nil, reject(`Not enough files.`)
	}
	files := make([]File, 0, len(req.Files))
	for _, f := range req.Files {
		nf, ok := normalizeFile(f)
		if !ok {
			return nil, reject(`Bad list of files.`)
		}
		files = append(files, nf)
	}

	if req.UserToken == "" {
		return nil, reject(`Missing "userToken".`)
	}
	if subtle.ConstantTimeCompare([]byte(req.UserToken), []byte(v.UserToken)) != 1 {
		return nil, reject(`Invalid "userToken".`)
	}

	if req.AppName == "" {
		return nil, reject(`Missing "appName".`)
	}
	if !appNameRegexp.MatchString(req.AppName) {
		return nil, reject(`Invalid appName "%s"`, req.AppName)
	}

	return &Request{
		SDKVersion: req.SDKVersion,
		Files:      files,
		UserToken:  req.UserToken,
		AppName:    req.AppName,
	}, nil
}

func normalizeFile(f File) (File, bool) {
	u, err := url.Parse(f.URL)
	if err != nil {
		return File{}, false
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "http" && scheme != "https" {
		return File{}, false
	}
	if u.Host == "" {
		return File{}, false
	}

	// path.Clean turns "" into "." so empty paths fail the prefix check.
	p := path.Clean(f.Path)
	if strings.HasPrefix(p, ".") || strings.HasPrefix(p, "/") {
		return File{}, false
	}

	return File{URL: f.URL, Path: p}, true
}
