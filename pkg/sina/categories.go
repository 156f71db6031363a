package sina

import (
	"fmt"
	"strconv"
)

// Tag selects a category of the zhibo live feed.
type Tag int

const (
	TagAll           Tag = 0
	TagMacro         Tag = 1
	TagCompany       Tag = 3
	TagData          Tag = 4
	TagMarket        Tag = 5
	TagOpinion       Tag = 6
	TagCentralBank   Tag = 7
	TagOther         Tag = 8
	TagAShares       Tag = 10
	TagInternational Tag = 102
)

var tagNames = map[Tag]string{
	TagAll:           "all",
	TagMacro:         "macro",
	TagCompany:       "company",
	TagData:          "data",
	TagMarket:        "market",
	TagOpinion:       "opinion",
	TagCentralBank:   "central_bank",
	TagOther:         "other",
	TagAShares:       "a_shares",
	TagInternational: "international",
}

// Valid reports whether t is a known tag.
func (t Tag) Valid() bool {
	_, ok := tagNames[t]
	return ok
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return "tag(" + strconv.Itoa(int(t)) + ")"
}

// Lid selects a category of the roll feed.
type Lid int

const (
	LidForex         Lid = 2487
	LidFinance       Lid = 2519
	LidStocks        Lid = 2671
	LidUSStocks      Lid = 2672
	LidChinaConcept  Lid = 2673
	LidHKStocks      Lid = 2674
	LidResearch      Lid = 2675
	LidGlobalMarkets Lid = 2676
)

var lidNames = map[Lid]string{
	LidForex:         "forex",
	LidFinance:       "finance",
	LidStocks:        "stocks",
	LidUSStocks:      "us_stocks",
	LidChinaConcept:  "china_concept",
	LidHKStocks:      "hk_stocks",
	LidResearch:      "research",
	LidGlobalMarkets: "global_markets",
}

// Valid reports whether l is a known lid.
func (l Lid) Valid() bool {
	_, ok := lidNames[l]
	return ok
}

func (l Lid) String() string {
	if name, ok := lidNames[l]; ok {
		return name
	}
	return "lid(" + strconv.Itoa(int(l)) + ")"
}

// ParseTag parses a numeric tag and checks it is known.
func ParseTag(s string) (Tag, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: tag %q", ErrUnknownCategory, s)
	}
	if t := Tag(n); t.Valid() {
		return t, nil
	}
	return 0, fmt.Errorf("%w: tag %d", ErrUnknownCategory, n)
}

// ParseLid parses a numeric lid and checks it is known.
func ParseLid(s string) (Lid, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: lid %q", ErrUnknownCategory, s)
	}
	if l := Lid(n); l.Valid() {
		return l, nil
	}
	return 0, fmt.Errorf("%w: lid %d", ErrUnknownCategory, n)
}
