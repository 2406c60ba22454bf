package models

// KnownPlayers is the fixed catalog of consistent caricature characters.
// Profiles are selected by the caller, never created at runtime.
var KnownPlayers = []PlayerProfile{
	{
		ID:           "cr7",
		Name:         "Cristiano Ronaldo",
		Team:         "Al Nassr / Portugal",
		VisualTokens: "Cartoon Cristiano Ronaldo, extremely long neck, exaggerated sharp jawline, prominent adams apple, slicked back hair, confident smirk, wearing yellow and blue Al Nassr jersey number 7, caricature style",
	},
	{
		ID:           "leo",
		Name:         "Lionel Messi",
		Team:         "Inter Miami / Argentina",
		VisualTokens: "Cartoon Lionel Messi, short neck, beard, kind eyes, wearing pink Inter Miami jersey number 10, caricature style",
	},
	{
		ID:           "haaland",
		Name:         "Erling Haaland",
		Team:         "Man City",
		VisualTokens: "Cartoon Erling Haaland, long blonde hair tied back, viking features, wide mouth, pale skin, sky blue Man City jersey, caricature style",
	},
	{
		ID:           "mbappe",
		Name:         "Kylian Mbappe",
		Team:         "Real Madrid",
		VisualTokens: "Cartoon Kylian Mbappe, shaved head, ninja turtle resemblance features, wearing white Real Madrid jersey, speed lines, caricature style",
	},
	{
		ID:           "bellingham",
		Name:         "Jude Bellingham",
		Team:         "Real Madrid",
		VisualTokens: "Cartoon Jude Bellingham, short afro hair, open arms celebration pose, white Real Madrid jersey, caricature style",
	},
}

// FindPlayer looks up a catalog profile by ID.
func FindPlayer(id string) (PlayerProfile, bool) {
	for _, p := range KnownPlayers {
		if p.ID == id {
			return p, true
		}
	}
	return PlayerProfile{}, false
}
