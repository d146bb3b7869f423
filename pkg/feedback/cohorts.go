package feedback

import "regexp"

// Cohort is a named cultural/linguistic/topical category. Roots
// matching any of its patterns belong to it; SeedFile, when set, names
// the wordlist under the feedback directory that grows with matches.
type Cohort struct {
	Name     string
	SeedFile string
	Patterns []*regexp.Regexp
}

// cohorts is the compiled-in classification table. Patterns match the
// whole lowercased root.
var cohorts = []Cohort{
	{
		Name:     "vietnamese-names",
		SeedFile: "cohort-vietnamese.txt",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`^(nguyen|tran|pham|hoang|phan|truong|dang|bui|ngo|duong)[a-z]*$`),
			regexp.MustCompile(`^[a-z]*(thanh|huong|phuong|trang|tuan|dung|hanh|linh|thao)$`),
			regexp.MustCompile(`^(anh|thi|van|minh|quoc|duc)[a-z]{2,}$`),
		},
	},
	{
		Name:     "hindi-roman",
		SeedFile: "cohort-hindi.txt",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`^(raj|kumar|singh|sharma|patel|gupta|yadav|verma)[a-z]*$`),
			regexp.MustCompile(`^[a-z]*(preet|deep|jeet|inder|jit)$`),
			regexp.MustCompile(`^(priya|pooja|neha|anil|sunil|vijay|sanjay|rahul)[a-z]*$`),
		},
	},
	{
		Name:     "spanish-names",
		SeedFile: "cohort-spanish.txt",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`^(jose|juan|luis|carlos|pedro|maria|carmen|rosa)[a-z]*$`),
			regexp.MustCompile(`^[a-z]+(ito|ita|illo|cita)$`),
			regexp.MustCompile(`^(garcia|lopez|martinez|gonzalez|hernandez|rodriguez)[a-z]*$`),
		},
	},
	{
		Name:     "turkish-names",
		SeedFile: "cohort-turkish.txt",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`^(mehmet|mustafa|ahmet|fatma|ayse|emre|murat)[a-z]*$`),
			regexp.MustCompile(`^[a-z]*(oglu|han|kan)$`),
		},
	},
	{
		Name:     "music-metal",
		SeedFile: "cohort-music.txt",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`^(metallica|slayer|pantera|megadeth|maiden|sabbath|slipknot)[a-z]*$`),
			regexp.MustCompile(`^[a-z]*(metal|rocker|riff)$`),
		},
	},
	{
		Name:     "gaming",
		SeedFile: "cohort-gaming.txt",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`^(zelda|mario|sonic|kratos|master.?chief|pikachu|charizard)[a-z]*$`),
			regexp.MustCompile(`^[a-z]*(gamer|noob|pwn|frag)[a-z]*$`),
			regexp.MustCompile(`^(halo|doom|quake|diablo|skyrim|warcraft)[a-z]*$`),
		},
	},
	{
		Name:     "sports-football",
		SeedFile: "cohort-football.txt",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`^(ronaldo|messi|neymar|zidane|beckham|maradona)[a-z]*$`),
			regexp.MustCompile(`^(arsenal|chelsea|liverpool|barcelona|juventus|milan)[a-z]*$`),
			regexp.MustCompile(`^[a-z]*(futbol|soccer|striker)$`),
		},
	},
	{
		Name:     "animals-pets",
		SeedFile: "cohort-pets.txt",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`^[a-z]*(kitty|puppy|doggy|bunny)[a-z]*$`),
			regexp.MustCompile(`^(rex|buddy|bella|luna|max|charlie|rocky)[a-z]*$`),
		},
	},
}

// discoveryPattern probes the unclassified residue for candidate new
// cohorts. Matches are surfaced in the report for a human to review,
// never promoted automatically.
type discoveryPattern struct {
	Name    string
	Pattern *regexp.Regexp
}

var discoveryPatterns = []discoveryPattern{
	{"korean-roman", regexp.MustCompile(`^(kim|lee|park|choi|jung|kang)[a-z]{2,}$`)},
	{"arabic-roman", regexp.MustCompile(`^(mohamed|ahmed|ali|omar|hassan|fatima)[a-z]*$`)},
	{"anime", regexp.MustCompile(`^(naruto|sasuke|goku|vegeta|luffy|ichigo|senpai)[a-z]*$`)},
	{"crypto-slang", regexp.MustCompile(`^[a-z]*(hodl|satoshi|doge|moon|lambo)[a-z]*$`)},
	{"polish-names", regexp.MustCompile(`^[a-z]+(ski|cki|wicz|czyk)$`)},
	{"brazilian-pt", regexp.MustCompile(`^[a-z]+(inho|inha|zinho|zinha)$`)},
}

// MatchCohorts returns the names of every cohort whose pattern matches
// root, in table order
func MatchCohorts(root string) []string {
	var names []string
	for _, c := range cohorts {
		for _, p := range c.Patterns {
			if p.MatchString(root) {
				names = append(names, c.Name)
				break
			}
		}
	}
	return names
}

// cohortByName returns the cohort entry for a name, or nil
func cohortByName(name string) *Cohort {
	for i := range cohorts {
		if cohorts[i].Name == name {
			return &cohorts[i]
		}
	}
	return nil
}

// Discover runs the discovery patterns over unclassified roots and
// returns pattern name → matched roots for every pattern with at least
// minMatches matches
func Discover(roots []string, minMatches int) map[string][]string {
	if minMatches <= 0 {
		minMatches = 3
	}
	found := make(map[string][]string)
	for _, dp := range discoveryPatterns {
		var matched []string
		for _, r := range roots {
			if dp.Pattern.MatchString(r) {
				matched = append(matched, r)
			}
		}
		if len(matched) >= minMatches {
			found[dp.Name] = matched
		}
	}
	return found
}
