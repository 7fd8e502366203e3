// Package inventory discovers the unit tests registered inside a
// compiled test binary. Tests self-register through a linker list:
// each one contributes a fixed-size unit_test record to a read-only
// data section and a data symbol named after its suite and test name.
// The reader recovers the test set from a symbol-table dump and, when
// flags are needed, reads the raw records out of the binary at file
// offsets computed from the section headers.
//
// This is deliberately not a general object-file reader: it knows one
// struct layout, one section name and two symbol naming conventions.
package inventory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"

	"github.com/rs/zerolog"
)

// Unit test flags stored in the in-binary unit_test record.
const (
	FlagFlatTree = 0x08
	FlagLiveTree = 0x10
	FlagDM       = 0x80
)

// recordSize covers {file *char, name *char, func *fn, flags uint32}
// of the unit_test struct, little-endian.
const recordSize = 28

// Linker-list symbols have the form _u_boot_list_2_ut_<suite>_2_<test>,
// where '_2_' is the linker-list section separator. Suites additionally
// emit a suite_end_<suite> marker symbol.
var (
	reTestAll  = regexp.MustCompile(`_u_boot_list_2_ut_(\w+?)_2_(\w+)`)
	reSuiteEnd = regexp.MustCompile(`\bsuite_end_(\w+)`)
	reSection  = regexp.MustCompile(`\.data\.rel\.ro\s+PROGBITS\s+([0-9a-f]+)\s+([0-9a-f]+)`)
)

// ErrSectionNotFound is returned when the binary has no .data.rel.ro
// section header. Callers treat this as non-fatal and fall back to
// flag-less prediction.
var ErrSectionNotFound = errors.New("section .data.rel.ro not found")

// TestRecord describes one discovered test. Flags is zero unless the
// record was produced by TestFlags.
type TestRecord struct {
	Suite string
	Name  string
	Flags uint32
}

// SectionInfo locates the data section holding the unit_test table.
type SectionInfo struct {
	VirtualAddr uint64
	FileOffset  uint64
}

// Reader extracts test metadata from a compiled test binary.
type Reader struct {
	logger zerolog.Logger

	// runTool invokes an external dump tool and returns its stdout.
	// Replaceable in tests.
	runTool func(name string, args ...string) (string, error)
}

func NewReader(logger zerolog.Logger) *Reader {
	return &Reader{
		logger:  logger,
		runTool: runTool,
	}
}

func runTool(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s failed (tool unavailable or binary malformed): %w", name, err)
	}
	return string(out), nil
}

// ListSuites returns the sorted set of suite names in the binary.
func (r *Reader) ListSuites(path string) ([]string, error) {
	out, err := r.runTool("nm", path)
	if err != nil {
		return nil, err
	}
	return parseSuites(out), nil
}

// ListTests returns the sorted set of tests in the binary, restricted
// to one suite if suite is non-empty. Flags are left unset.
func (r *Reader) ListTests(path, suite string) ([]TestRecord, error) {
	out, err := r.runTool("nm", path)
	if err != nil {
		return nil, err
	}
	recs := parseTests(out, suite)
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Suite != recs[j].Suite {
			return recs[i].Suite < recs[j].Suite
		}
		return recs[i].Name < recs[j].Name
	})
	return recs, nil
}

// TestOrder returns the tests in symbol-table order, which reflects
// the linker-list layout and therefore the real execution order. The
// pollution finder depends on this ordering.
func (r *Reader) TestOrder(path string) ([]TestRecord, error) {
	out, err := r.runTool("nm", path)
	if err != nil {
		return nil, err
	}
	return parseTests(out, ""), nil
}

// SectionInfo parses the section-header dump for the .data.rel.ro
// section. A missing section returns ErrSectionNotFound.
func (r *Reader) SectionInfo(path string) (SectionInfo, error) {
	out, err := r.runTool("readelf", "-S", path)
	if err != nil {
		return SectionInfo{}, err
	}
	return parseSectionInfo(out)
}

// TestFlags returns the tests of one suite with their flags populated
// from the unit_test records embedded in the binary. Records that
// cannot be read in full are skipped; enumeration is best-effort.
func (r *Reader) TestFlags(path, suite string) ([]TestRecord, error) {
	out, err := r.runTool("nm", path)
	if err != nil {
		return nil, err
	}
	syms := parseTestAddrs(out, suite)
	if len(syms) == 0 {
		return nil, nil
	}

	section, err := r.SectionInfo(path)
	if err != nil {
		return nil, err
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open binary: %w", err)
	}
	defer fh.Close()

	var recs []TestRecord
	buf := make([]byte, recordSize)
	for _, sym := range syms {
		offset := section.FileOffset + (sym.addr - section.VirtualAddr)
		n, err := fh.ReadAt(buf, int64(offset))
		if n < recordSize {
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read record for %s: %w", sym.name, err)
			}
			r.logger.Debug().Str("test", sym.name).Msg("Short unit_test record, skipping")
			continue
		}
		recs = append(recs, TestRecord{
			Suite: suite,
			Name:  sym.name,
			Flags: decodeFlags(buf),
		})
	}
	return recs, nil
}

type symbol struct {
	addr uint64
	name string
}

func parseSuites(nmOutput string) []string {
	seen := make(map[string]bool)
	var suites []string
	for _, m := range reSuiteEnd.FindAllStringSubmatch(nmOutput, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			suites = append(suites, m[1])
		}
	}
	sort.Strings(suites)
	return suites
}

// parseTests extracts (suite, name) pairs in symbol-table order,
// collapsing duplicates.
func parseTests(nmOutput, suite string) []TestRecord {
	seen := make(map[TestRecord]bool)
	var recs []TestRecord
	for _, m := range reTestAll.FindAllStringSubmatch(nmOutput, -1) {
		if suite != "" && m[1] != suite {
			continue
		}
		rec := TestRecord{Suite: m[1], Name: m[2]}
		if !seen[rec] {
			seen[rec] = true
			recs = append(recs, rec)
		}
	}
	return recs
}

// parseTestAddrs extracts the data-symbol addresses of one suite's
// linker-list records.
func parseTestAddrs(nmOutput, suite string) []symbol {
	re := regexp.MustCompile(
		`([0-9a-f]+) D _u_boot_list_2_ut_` + regexp.QuoteMeta(suite) + `_2_(\w+)`)
	var syms []symbol
	for _, m := range re.FindAllStringSubmatch(nmOutput, -1) {
		addr, err := strconv.ParseUint(m[1], 16, 64)
		if err != nil {
			continue
		}
		syms = append(syms, symbol{addr: addr, name: m[2]})
	}
	return syms
}

func parseSectionInfo(readelfOutput string) (SectionInfo, error) {
	m := reSection.FindStringSubmatch(readelfOutput)
	if m == nil {
		return SectionInfo{}, ErrSectionNotFound
	}
	addr, err := strconv.ParseUint(m[1], 16, 64)
	if err != nil {
		return SectionInfo{}, fmt.Errorf("bad section address %q: %w", m[1], err)
	}
	offset, err := strconv.ParseUint(m[2], 16, 64)
	if err != nil {
		return SectionInfo{}, fmt.Errorf("bad section offset %q: %w", m[2], err)
	}
	return SectionInfo{VirtualAddr: addr, FileOffset: offset}, nil
}

// decodeFlags pulls the flags word out of a raw unit_test record:
// three 8-byte pointers followed by a 32-bit flags field.
func decodeFlags(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data[24:28])
}
