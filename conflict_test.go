package depresolve_test

import (
	"testing"

	. "github.com/rhansen/depresolve"
)

type tCandidate struct {
	id     ComponentIdentity
	forced bool
}

func (c tCandidate) Id() ComponentIdentity { return c.id }
func (c tCandidate) Forced() bool { return c.forced }
func (c tCandidate) Metadata() *ComponentMetadata { return &ComponentMetadata{Id: c.id} }

func candidates(versions ...string) []Candidate {
	var ret []Candidate
	for _, s := range versions {
		forced := s[0] == '!'
		if forced {
			s = s[1:]
		}
		ret = append(ret, tCandidate{NewComponentIdentity("g", "m", s), forced})
	}
	return ret
}

func TestConflictResolvers(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		desc       string
		resolver   ConflictResolver
		candidates []Candidate
		want       string
		wantErr    bool
	}{
		{"latest", LatestVersion, candidates("1.0", "1.10", "1.9"), "1.10", false},
		{"latest forced", LatestVersion, candidates("!1.0", "2.0"), "1.0", false},
		{"latest of several forced", LatestVersion, candidates("!1.0", "!1.5", "2.0"), "1.5", false},
		{"fail", FailOnVersionConflict, candidates("1.0", "2.0"), "", true},
		{"fail with one forced", FailOnVersionConflict, candidates("1.0", "!2.0"), "2.0", false},
		{"fail with two forced", FailOnVersionConflict, candidates("!1.0", "!2.0"), "", true},
		{
			desc: "custom",
			resolver: ConflictResolverFunc(func(_ ModuleIdentity, cs []Candidate) (Candidate, error) {
				return cs[0], nil
			}),
			candidates: candidates("1.0", "2.0"),
			want:       "1.0",
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			got, err := tc.resolver.SelectWinner(NewModuleIdentity("g", "m"), tc.candidates)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("got winner %v, want error", got.Id())
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.Id().Version != tc.want {
				t.Errorf("got winner %v, want version %v", got.Id(), tc.want)
			}
		})
	}
}

func TestSubstitutionRules(t *testing.T) {
	t.Parallel()
	rules := new(SubstitutionRules).
		Substitute(NewModuleIdentity("g", "old"), "", NewModuleSelector("g", "new", "2"), "renamed").
		Substitute(NewModuleIdentity("g", "pinned"), "1.0", NewModuleSelector("g", "pinned", "1.1"), "security fix").
		Substitute(NewModuleIdentity("g", "bad-target"), "", NewModuleSelector("g", "x", ""), "").
		Reject(NewModuleIdentity("g", "banned"), "license")
	for _, tc := range []struct {
		sel     ModuleSelector
		want    SubstitutionResult
		wantErr bool
	}{
		{
			sel:  NewModuleSelector("g", "old", "1"),
			want: SubstitutionResult{Updated: true, Target: NewModuleSelector("g", "new", "2"), Reason: "renamed"},
		},
		{
			sel:  NewModuleSelector("g", "pinned", "1.0"),
			want: SubstitutionResult{Updated: true, Target: NewModuleSelector("g", "pinned", "1.1"), Reason: "security fix"},
		},
		{sel: NewModuleSelector("g", "pinned", "1.2")},
		{sel: NewModuleSelector("g", "other", "1")},
		{sel: NewModuleSelector("g", "bad-target", "1"), wantErr: true},
		{sel: NewModuleSelector("g", "banned", "1"), wantErr: true},
	} {
		t.Run(tc.sel.String(), func(t *testing.T) {
			t.Parallel()
			got, err := rules.Apply(DependencyMetadata{Selector: tc.sel})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("got %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}
