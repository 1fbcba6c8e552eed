// Package inifile edits the operator's config.ini: the setup written by the wizard and the
// [SignCodes] section. Sections it does not own are preserved on every write.
package inifile

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/ini.v1"

	"github.com/trezcool/ulearn/core"
)

const (
	accountSection  = "Account"
	locationSection = "Location"
	emailSection    = "Email"
	codesSection    = "SignCodes"
	serverSection   = "Server"

	// course names at least this similar to a lookup are suggested
	minSimilarity = 0.6
)

// Setup is what the configuration wizard collects.
type Setup struct {
	Account  core.AccountConfig
	Location core.LocationConfig
	Email    core.EmailConfig
}

// File is the config.ini at a path. Every operation reloads the file.
type File struct {
	path string
	mu   sync.Mutex
}

func New(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string { return f.path }

func (f *File) load() (*ini.File, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{Loose: true}, f.path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", f.path)
	}
	return cfg, nil
}

func (f *File) save(cfg *ini.File) error {
	tmp := f.path + ".tmp"
	if err := cfg.SaveTo(tmp); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "writing %s", f.path)
	}
	return errors.Wrapf(os.Rename(tmp, f.path), "replacing %s", f.path)
}

// WriteSetup stores the wizard answers, keeping [SignCodes] and any other section.
func (f *File) WriteSetup(s Setup) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cfg, err := f.load()
	if err != nil {
		return err
	}
	set := func(section, key, value string) {
		cfg.Section(section).Key(key).SetValue(value)
	}
	set(accountSection, "username", core.NormalizeUsername(s.Account.Username))
	set(accountSection, "password", s.Account.Password)

	lat, lon := core.CleanString(s.Location.Lat), core.CleanString(s.Location.Lon)
	if lat == "" {
		lat = core.DefaultLat
	}
	if lon == "" {
		lon = core.DefaultLon
	}
	set(locationSection, "lat", lat)
	set(locationSection, "lon", lon)

	set(emailSection, "from_addr", core.CleanString(s.Email.FromAddr))
	set(emailSection, "auth_code", s.Email.AuthCode)
	set(emailSection, "to_addr", core.CleanString(s.Email.ToAddr))
	return f.save(cfg)
}

// SetAPIKeyHash stores the bcrypt hash of the control API key.
func (f *File) SetAPIKeyHash(hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cfg, err := f.load()
	if err != nil {
		return err
	}
	cfg.Section(serverSection).Key("api_key_hash").SetValue(hash)
	return f.save(cfg)
}

// SignCodes is the [SignCodes] section: preset sign codes keyed by course name.
type SignCodes struct {
	file   *File
	logger core.Logger
}

func NewSignCodes(file *File, logger core.Logger) *SignCodes {
	return &SignCodes{file: file, logger: logger}
}

// Code looks `courseName` up exactly, then case-insensitively. The file is re-read on each
// call so edits apply to the next cycle.
func (sc *SignCodes) Code(courseName string) (string, bool) {
	codes, err := sc.List()
	if err != nil {
		sc.logger.Warn("could not read sign codes: " + err.Error())
		return "", false
	}
	if code, ok := codes[courseName]; ok && code != "" {
		return code, true
	}
	for name, code := range codes {
		if strings.EqualFold(name, courseName) && code != "" {
			return code, true
		}
	}
	if name := closest(codes, courseName); name != "" {
		sc.logger.Warn(fmt.Sprintf("no sign code for %s, did you mean %s?", courseName, name))
	}
	return "", false
}

// Suggest returns the course name holding a code that is most similar to `courseName`, or "".
func (sc *SignCodes) Suggest(courseName string) string {
	codes, err := sc.List()
	if err != nil {
		return ""
	}
	return closest(codes, courseName)
}

func closest(codes map[string]string, courseName string) string {
	target := strings.Split(strings.ToLower(courseName), "")
	best, bestRatio := "", 0.0
	for name, code := range codes {
		if code == "" {
			continue
		}
		ratio := difflib.NewMatcher(target, strings.Split(strings.ToLower(name), "")).Ratio()
		if ratio < minSimilarity {
			continue
		}
		if ratio > bestRatio || (ratio == bestRatio && name < best) {
			best, bestRatio = name, ratio
		}
	}
	return best
}

// List returns every preset code.
func (sc *SignCodes) List() (map[string]string, error) {
	sc.file.mu.Lock()
	defer sc.file.mu.Unlock()

	cfg, err := sc.file.load()
	if err != nil {
		return nil, err
	}
	codes := make(map[string]string)
	if sec, err := cfg.GetSection(codesSection); err == nil {
		for _, k := range sec.Keys() {
			codes[k.Name()] = k.Value()
		}
	}
	return codes, nil
}

// SortedNames returns the course names of `codes`, sorted.
func SortedNames(codes map[string]string) []string {
	names := make([]string, 0, len(codes))
	for name := range codes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (sc *SignCodes) Set(courseName, code string) error {
	courseName, code = core.CleanString(courseName), core.CleanString(code)
	if courseName == "" || code == "" {
		return core.NewArgumentError("course name and code are required")
	}

	sc.file.mu.Lock()
	defer sc.file.mu.Unlock()
	cfg, err := sc.file.load()
	if err != nil {
		return err
	}
	cfg.Section(codesSection).Key(courseName).SetValue(code)
	return sc.file.save(cfg)
}

// Delete removes the code of `courseName`, reporting whether one existed.
func (sc *SignCodes) Delete(courseName string) (bool, error) {
	courseName = core.CleanString(courseName)

	sc.file.mu.Lock()
	defer sc.file.mu.Unlock()
	cfg, err := sc.file.load()
	if err != nil {
		return false, err
	}
	sec, err := cfg.GetSection(codesSection)
	if err != nil || !sec.HasKey(courseName) {
		return false, nil
	}
	sec.DeleteKey(courseName)
	return true, sc.file.save(cfg)
}
