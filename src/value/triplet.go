package value

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// TargetTriplet is the payload backing TargetTripletType: a
// cpu-vendor-os[-abi] identifier with an optional trailing semantic-version
// component (e.g. "x86_64-unknown-linux-gnu-12.2.0"). Toolchain discovery
// (probing a real compiler to produce one of these) stays out of scope per
// spec.md §1; this is purely the value-type's parse/compare/round-trip
// behaviour, grounded on the v-table dispatch the core requires for every
// fixed value type.
type TargetTriplet struct {
	CPU, Vendor, OS, ABI string
	Version              *semver.Version // nil if no version component present
}

func (t TargetTriplet) String() string {
	parts := []string{t.CPU, t.Vendor, t.OS}
	if t.ABI != "" {
		parts = append(parts, t.ABI)
	}
	s := strings.Join(parts, "-")
	if t.Version != nil {
		s += "-" + t.Version.Original()
	}
	return s
}

func parseTargetTriplet(s string) (TargetTriplet, error) {
	parts := strings.Split(s, "-")
	if len(parts) < 3 {
		return TargetTriplet{}, fmt.Errorf("target triplet %q needs at least cpu-vendor-os", s)
	}
	t := TargetTriplet{CPU: parts[0], Vendor: parts[1], OS: parts[2]}
	rest := parts[3:]
	if len(rest) > 0 {
		if v, err := semver.NewVersion(rest[len(rest)-1]); err == nil {
			t.Version = v
			rest = rest[:len(rest)-1]
		}
	}
	if len(rest) > 0 {
		t.ABI = strings.Join(rest, "-")
	}
	return t, nil
}

var TargetTripletType = &VTable{
	TypeName: "target_triplet",
	Zero:     func() any { return TargetTriplet{} },
	Copy:     func(p any) any { return p },
	AssignFromNames: func(names Names) (any, error) {
		s := names.String()
		t, err := parseTargetTriplet(s)
		if err != nil {
			return nil, &InvalidValueError{Type: "target_triplet", Name: s, Cause: err}
		}
		return t, nil
	},
	ReverseToNames: func(p any) Names { return NamesOf(p.(TargetTriplet).String()) },
	Compare: func(a, b any) int {
		x, y := a.(TargetTriplet), b.(TargetTriplet)
		if c := compareStrings(x.CPU+x.Vendor+x.OS+x.ABI, y.CPU+y.Vendor+y.OS+y.ABI); c != 0 {
			return c
		}
		switch {
		case x.Version == nil && y.Version == nil:
			return 0
		case x.Version == nil:
			return -1
		case y.Version == nil:
			return 1
		default:
			return x.Version.Compare(y.Version)
		}
	},
	Empty: func(p any) bool { return p.(TargetTriplet).CPU == "" },
}

func init() {
	RegisterType(TargetTripletType)
}

// SameToolchainFamily reports whether two triplets share cpu/vendor/os/abi,
// differing at most in their version component. Used by rules (outside this
// core) that need to decide whether two triplets refer to compatible
// toolchains; kept here since it only depends on the type's own fields.
func SameToolchainFamily(a, b TargetTriplet) bool {
	return a.CPU == b.CPU && a.Vendor == b.Vendor && a.OS == b.OS && a.ABI == b.ABI
}
