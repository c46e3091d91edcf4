// Package molecule provides SMILES parsing and atom featurization for
// GraphChem.  The parser covers the organic subset, bracket atoms, branches,
// ring closures, and aromatic notation, enough to featurize the common
// benchmark datasets without an external chemistry toolkit.
package molecule

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/molforge/graphchem/pkg/errors"
)

// MaxSMILESLength bounds accepted input; anything longer is rejected before
// parsing.
const MaxSMILESLength = 5000

// ─────────────────────────────────────────────────────────────────────────────
// Molecule model
// ─────────────────────────────────────────────────────────────────────────────

// Atom is a parsed atom within a molecule.
type Atom struct {
	Symbol    string
	AtomicNum int
	Aromatic  bool
	Charge    int
	// ExplicitH is the hydrogen count given in a bracket atom, or -1 when
	// hydrogens are implicit and must be estimated from valence.
	ExplicitH int
}

// Bond is a parsed bond.  Order is 1, 2, or 3; aromatic bonds carry Order 1
// with Aromatic set.
type Bond struct {
	Src      int
	Dst      int
	Order    int
	Aromatic bool
}

// Molecule is the parsed form of a SMILES string.
type Molecule struct {
	SMILES string
	Atoms  []Atom
	Bonds  []Bond
}

// NumAtoms returns the number of heavy atoms in the molecule.
func (m *Molecule) NumAtoms() int { return len(m.Atoms) }

// AdjacencyList returns, for each atom, the indices of its bonded neighbors.
func (m *Molecule) AdjacencyList() [][]int {
	adj := make([][]int, len(m.Atoms))
	for _, b := range m.Bonds {
		adj[b.Src] = append(adj[b.Src], b.Dst)
		adj[b.Dst] = append(adj[b.Dst], b.Src)
	}
	return adj
}

// Degree returns the number of bonded neighbors of atom i.
func (m *Molecule) Degree(i int) int {
	d := 0
	for _, b := range m.Bonds {
		if b.Src == i || b.Dst == i {
			d++
		}
	}
	return d
}

// BondOrderSum returns the total bond order at atom i.  Aromatic bonds count
// as order 1; the aromatic flag is carried separately in the feature vector.
func (m *Molecule) BondOrderSum(i int) int {
	sum := 0
	for _, b := range m.Bonds {
		if b.Src == i || b.Dst == i {
			sum += b.Order
		}
	}
	return sum
}

// ImplicitHCount estimates the implicit hydrogen count of atom i from
// standard valence rules, honoring an explicit bracket H count when present.
func (m *Molecule) ImplicitHCount(i int) int {
	a := m.Atoms[i]
	if a.ExplicitH >= 0 {
		return a.ExplicitH
	}
	v, ok := defaultValence[a.AtomicNum]
	if !ok {
		return 0
	}
	h := v - m.BondOrderSum(i) + a.Charge
	if a.Charge < 0 {
		h = v - m.BondOrderSum(i) - a.Charge
	}
	if h < 0 {
		h = 0
	}
	return h
}

// ─────────────────────────────────────────────────────────────────────────────
// Element tables
// ─────────────────────────────────────────────────────────────────────────────

// atomicNumberMap maps element symbols to atomic numbers for the elements
// that occur in the supported benchmark datasets.
var atomicNumberMap = map[string]int{
	"H": 1, "He": 2, "Li": 3, "Be": 4, "B": 5, "C": 6, "N": 7, "O": 8,
	"F": 9, "Ne": 10, "Na": 11, "Mg": 12, "Al": 13, "Si": 14, "P": 15,
	"S": 16, "Cl": 17, "Ar": 18, "K": 19, "Ca": 20, "Ti": 22, "V": 23, "Cr": 24,
	"Mn": 25, "Fe": 26, "Co": 27, "Ni": 28, "Cu": 29, "Zn": 30, "Ge": 32,
	"As": 33, "Se": 34, "Br": 35, "Zr": 40, "Mo": 42, "Pd": 46, "Ag": 47,
	"Cd": 48, "In": 49, "Sn": 50, "Sb": 51, "Te": 52, "I": 53, "Ba": 56,
	"Pt": 78, "Au": 79, "Hg": 80, "Tl": 81, "Pb": 82, "Bi": 83, "Gd": 64,
	"Yb": 70,
}

// defaultValence holds standard valences used for implicit-H estimation.
var defaultValence = map[int]int{
	5: 3, 6: 4, 7: 3, 8: 2, 9: 1, 15: 3, 16: 2, 17: 1, 35: 1, 53: 1,
}

// smilesPattern is a structural pre-check; full validation happens in the
// parser itself.
var smilesPattern = regexp.MustCompile(`^[A-Za-z0-9@+\-\[\]()=#$:/\\.%*]+$`)

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// ValidateSMILES performs lightweight structural validation of a SMILES
// string: non-empty, bounded length, legal character set, balanced brackets.
func ValidateSMILES(smiles string) error {
	if smiles == "" {
		return errors.New(errors.ErrCodeInvalidSMILES, "SMILES string is empty")
	}
	if len(smiles) > MaxSMILESLength {
		return errors.Newf(errors.ErrCodeInvalidSMILES,
			"SMILES string exceeds maximum length (%d)", MaxSMILESLength)
	}
	if !smilesPattern.MatchString(smiles) {
		return errors.New(errors.ErrCodeInvalidSMILES, "SMILES contains invalid characters").
			WithDetail(smiles)
	}
	if !balancedBrackets(smiles) {
		return errors.New(errors.ErrCodeInvalidSMILES, "SMILES has unbalanced brackets").
			WithDetail(smiles)
	}
	return nil
}

// balancedBrackets checks that [ ] and ( ) are balanced and correctly nested.
func balancedBrackets(s string) bool {
	var stack []rune
	for _, ch := range s {
		switch ch {
		case '[', '(':
			stack = append(stack, ch)
		case ']':
			if len(stack) == 0 || stack[len(stack)-1] != '[' {
				return false
			}
			stack = stack[:len(stack)-1]
		case ')':
			if len(stack) == 0 || stack[len(stack)-1] != '(' {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}

// Normalize trims whitespace and validates the result.  GraphChem does not
// attempt full canonicalization; identical structures written differently
// hash to different cache keys, which is safe (just less shared).
func Normalize(smiles string) (string, error) {
	normalized := strings.TrimSpace(smiles)
	if err := ValidateSMILES(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Parser
// ─────────────────────────────────────────────────────────────────────────────

// ringBond records a pending ring-closure: the atom that opened the ring and
// the bond symbol (if any) seen before the ring digit.
type ringBond struct {
	atom  int
	order int
}

// ParseSMILES parses a SMILES string into a Molecule.
//
// Supported notation: organic-subset atoms (aromatic lowercase included),
// bracket atoms with isotope/charge/explicit-H, branches, single/double/
// triple/aromatic bond symbols, ring closures (single digit and %nn), stereo
// markers (accepted, treated as single bonds), and '.'-separated fragments.
func ParseSMILES(smiles string) (*Molecule, error) {
	if err := ValidateSMILES(smiles); err != nil {
		return nil, err
	}

	mol := &Molecule{SMILES: smiles}
	runes := []rune(smiles)

	var (
		branchStack []int
		openRings   = map[int]ringBond{}
		prevAtom    = -1
		nextOrder   = 0 // 0 means "unspecified"; resolved per bond
	)

	addBond := func(src, dst, order int, bothAromatic bool) {
		aromatic := false
		if order == 0 {
			order = 1
			if bothAromatic {
				aromatic = true
			}
		}
		if order == 4 {
			order = 1
			aromatic = true
		}
		mol.Bonds = append(mol.Bonds, Bond{Src: src, Dst: dst, Order: order, Aromatic: aromatic})
	}

	addAtom := func(a Atom) int {
		idx := len(mol.Atoms)
		mol.Atoms = append(mol.Atoms, a)
		if prevAtom >= 0 {
			bothAromatic := a.Aromatic && mol.Atoms[prevAtom].Aromatic
			addBond(prevAtom, idx, nextOrder, bothAromatic)
			nextOrder = 0
		}
		prevAtom = idx
		return idx
	}

	closeRing := func(num int) error {
		if open, ok := openRings[num]; ok {
			delete(openRings, num)
			if open.atom == prevAtom {
				return errors.New(errors.ErrCodeSMILESParseFailed, "ring closure bonds atom to itself").
					WithDetail(smiles)
			}
			order := nextOrder
			if order == 0 {
				order = open.order
			}
			bothAromatic := mol.Atoms[open.atom].Aromatic && mol.Atoms[prevAtom].Aromatic
			addBond(open.atom, prevAtom, order, bothAromatic)
			nextOrder = 0
			return nil
		}
		if prevAtom < 0 {
			return errors.New(errors.ErrCodeSMILESParseFailed, "ring closure before any atom").
				WithDetail(smiles)
		}
		openRings[num] = ringBond{atom: prevAtom, order: nextOrder}
		nextOrder = 0
		return nil
	}

	i := 0
	for i < len(runes) {
		ch := runes[i]

		switch {
		case ch == '(':
			if prevAtom < 0 {
				return nil, errors.New(errors.ErrCodeSMILESParseFailed, "branch opened before any atom").
					WithDetail(smiles)
			}
			branchStack = append(branchStack, prevAtom)
			i++

		case ch == ')':
			if len(branchStack) == 0 {
				return nil, errors.New(errors.ErrCodeSMILESParseFailed, "unmatched branch close").
					WithDetail(smiles)
			}
			prevAtom = branchStack[len(branchStack)-1]
			branchStack = branchStack[:len(branchStack)-1]
			i++

		case ch == '-':
			nextOrder = 1
			i++
		case ch == '=':
			nextOrder = 2
			i++
		case ch == '#':
			nextOrder = 3
			i++
		case ch == ':':
			nextOrder = 4
			i++
		case ch == '/' || ch == '\\':
			// Stereo bond markers carry single-bond order here.
			nextOrder = 1
			i++

		case ch == '.':
			prevAtom = -1
			nextOrder = 0
			i++

		case ch == '%':
			if i+2 >= len(runes) || !unicode.IsDigit(runes[i+1]) || !unicode.IsDigit(runes[i+2]) {
				return nil, errors.New(errors.ErrCodeSMILESParseFailed, "malformed %nn ring closure").
					WithDetail(smiles)
			}
			num := int(runes[i+1]-'0')*10 + int(runes[i+2]-'0')
			if err := closeRing(num); err != nil {
				return nil, err
			}
			i += 3

		case unicode.IsDigit(ch):
			if err := closeRing(int(ch - '0')); err != nil {
				return nil, err
			}
			i++

		case ch == '[':
			j := i + 1
			for j < len(runes) && runes[j] != ']' {
				j++
			}
			if j >= len(runes) {
				return nil, errors.New(errors.ErrCodeSMILESParseFailed, "unclosed bracket atom").
					WithDetail(smiles)
			}
			atom, err := parseBracketAtom(string(runes[i+1 : j]))
			if err != nil {
				return nil, err
			}
			addAtom(atom)
			i = j + 1

		case unicode.IsLetter(ch):
			symbol, aromatic, advance, ok := parseOrganicAtom(runes, i)
			if !ok {
				return nil, errors.Newf(errors.ErrCodeSMILESParseFailed,
					"unknown atom symbol at position %d", i).WithDetail(smiles)
			}
			addAtom(Atom{
				Symbol:    symbol,
				AtomicNum: atomicNumberMap[symbol],
				Aromatic:  aromatic,
				ExplicitH: -1,
			})
			i += advance

		case ch == '*':
			// Wildcard atom: unknown element, zero atomic number.
			addAtom(Atom{Symbol: "*", ExplicitH: -1})
			i++

		default:
			return nil, errors.Newf(errors.ErrCodeSMILESParseFailed,
				"unexpected character %q at position %d", string(ch), i).WithDetail(smiles)
		}
	}

	if len(openRings) > 0 {
		return nil, errors.Newf(errors.ErrCodeSMILESParseFailed,
			"%d unclosed ring bond(s)", len(openRings)).WithDetail(smiles)
	}
	if len(branchStack) > 0 {
		return nil, errors.New(errors.ErrCodeSMILESParseFailed, "unclosed branch").
			WithDetail(smiles)
	}
	if len(mol.Atoms) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidSMILES, "no atoms found in SMILES").
			WithDetail(smiles)
	}

	return mol, nil
}

// parseOrganicAtom extracts an organic-subset atom symbol starting at
// position i.  Returns (symbol, isAromatic, runesConsumed, ok).
func parseOrganicAtom(runes []rune, i int) (string, bool, int, bool) {
	ch := runes[i]
	aromatic := unicode.IsLower(ch)
	upper := unicode.ToUpper(ch)

	// Two-letter elements (Cl, Br) take precedence over one-letter reads.
	if !aromatic && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
		twoLetter := string([]rune{upper, runes[i+1]})
		if _, ok := atomicNumberMap[twoLetter]; ok {
			return twoLetter, false, 2, true
		}
	}

	symbol := string(upper)
	if _, ok := atomicNumberMap[symbol]; !ok {
		return "", false, 0, false
	}
	if aromatic {
		// Only b, c, n, o, p, s may be written lowercase.
		switch symbol {
		case "B", "C", "N", "O", "P", "S":
		default:
			return "", false, 0, false
		}
	}
	return symbol, aromatic, 1, true
}

// parseBracketAtom parses the content of a [...] atom: optional isotope,
// element symbol, chirality markers, explicit H count, and charge.
func parseBracketAtom(content string) (Atom, error) {
	atom := Atom{ExplicitH: 0}
	runes := []rune(content)
	idx := 0

	// Isotope prefix is accepted and ignored.
	for idx < len(runes) && unicode.IsDigit(runes[idx]) {
		idx++
	}

	if idx >= len(runes) || !unicode.IsLetter(runes[idx]) {
		return atom, errors.New(errors.ErrCodeSMILESParseFailed, "bracket atom missing element symbol").
			WithDetail(content)
	}

	aromatic := unicode.IsLower(runes[idx])
	start := idx
	idx++
	if idx < len(runes) && unicode.IsLower(runes[idx]) && !aromatic {
		// Possible two-letter symbol.
		twoLetter := string(runes[start]) + string(runes[idx])
		if _, ok := atomicNumberMap[twoLetter]; ok {
			idx++
		}
	}
	symbol := string(runes[start:idx])
	if aromatic {
		symbol = strings.ToUpper(symbol[:1]) + symbol[1:]
	}
	atom.Symbol = symbol
	atom.AtomicNum = atomicNumberMap[symbol]
	atom.Aromatic = aromatic

	// Remaining modifiers in any order: @, @@, Hn, +, -, digits after charge.
	for idx < len(runes) {
		switch runes[idx] {
		case '@':
			idx++
		case 'H':
			idx++
			count := 1
			if idx < len(runes) && unicode.IsDigit(runes[idx]) {
				count = int(runes[idx] - '0')
				idx++
			}
			atom.ExplicitH = count
		case '+', '-':
			sign := 1
			if runes[idx] == '-' {
				sign = -1
			}
			signRune := runes[idx]
			magnitude := 0
			for idx < len(runes) && runes[idx] == signRune {
				magnitude++
				idx++
			}
			if idx < len(runes) && unicode.IsDigit(runes[idx]) {
				magnitude = int(runes[idx] - '0')
				idx++
			}
			atom.Charge = sign * magnitude
		default:
			return atom, errors.Newf(errors.ErrCodeSMILESParseFailed,
				"unexpected bracket-atom modifier %q", string(runes[idx])).WithDetail(content)
		}
	}

	return atom, nil
}

// String returns a short human-readable description for logs.
func (m *Molecule) String() string {
	return fmt.Sprintf("Molecule{atoms=%d bonds=%d smiles=%s}", len(m.Atoms), len(m.Bonds), m.SMILES)
}
