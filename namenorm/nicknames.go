// ABOUTME: Common-nickname clusters used as weak matching signals
// ABOUTME: A name maps to every other member of its cluster
package namenorm

var nicknameClusters = [][]string{
	{"robert", "rob", "bob", "bobby", "robbie", "bert"},
	{"william", "will", "bill", "billy", "willy", "liam"},
	{"richard", "rick", "rich", "dick", "ricky"},
	{"james", "jim", "jimmy", "jamie"},
	{"john", "jack", "johnny", "jon"},
	{"jonathan", "jon", "jonny"},
	{"michael", "mike", "mikey", "mick"},
	{"thomas", "tom", "tommy"},
	{"joseph", "joe", "joey"},
	{"charles", "charlie", "chuck", "chas"},
	{"christopher", "chris", "topher"},
	{"daniel", "dan", "danny"},
	{"david", "dave", "davey"},
	{"edward", "ed", "eddie", "ted", "ned"},
	{"anthony", "tony"},
	{"andrew", "andy", "drew"},
	{"matthew", "matt"},
	{"nicholas", "nick", "nicky"},
	{"steven", "stephen", "steve"},
	{"benjamin", "ben", "benny"},
	{"samuel", "sam", "sammy"},
	{"alexander", "alex", "al", "sasha"},
	{"elizabeth", "liz", "beth", "betty", "lizzie", "eliza"},
	{"margaret", "maggie", "meg", "peggy", "marge"},
	{"katherine", "catherine", "kate", "katie", "kathy", "cathy"},
	{"jennifer", "jen", "jenny"},
	{"patricia", "pat", "patty", "trish"},
	{"susan", "sue", "suzy"},
	{"deborah", "deb", "debbie"},
	{"rebecca", "becky", "becca"},
	{"victoria", "vicky", "tori"},
	{"alexandra", "alex", "sandra", "sasha"},
	{"abigail", "abby", "gail"},
	{"jessica", "jess", "jessie"},
	{"kimberly", "kim"},
	{"christine", "chris", "chrissy", "tina"},
}

var nicknameIndex = buildNicknameIndex()

func buildNicknameIndex() map[string][]string {
	idx := make(map[string][]string)
	for _, cluster := range nicknameClusters {
		for _, name := range cluster {
			for _, other := range cluster {
				if other == name || contains(idx[name], other) {
					continue
				}
				idx[name] = append(idx[name], other)
			}
		}
	}
	return idx
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// NicknameCluster returns the other names commonly used for the normalized
// given name, or nil.
func NicknameCluster(normalized string) []string {
	return nicknameIndex[normalized]
}
