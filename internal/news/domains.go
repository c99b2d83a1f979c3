package news

// defaultDomains is the built-in news-domain table. A YAML table loaded at
// startup can extend or override it.
var defaultDomains = []Domain{
	// US national
	{Domain: "nytimes.com", Category: "mainstream"},
	{Domain: "washingtonpost.com", Category: "mainstream"},
	{Domain: "usatoday.com", Category: "mainstream"},
	{Domain: "latimes.com", Category: "mainstream"},
	{Domain: "chicagotribune.com", Category: "mainstream"},
	{Domain: "nydailynews.com", Category: "mainstream"},

	// Broadcast
	{Domain: "cnn.com", Category: "mainstream"},
	{Domain: "foxnews.com", Category: "mainstream"},
	{Domain: "nbcnews.com", Category: "mainstream"},
	{Domain: "abcnews.go.com", Category: "mainstream"},
	{Domain: "cbsnews.com", Category: "mainstream"},
	{Domain: "msnbc.com", Category: "mainstream"},

	// International
	{Domain: "bbc.com", Category: "mainstream"},
	{Domain: "bbc.co.uk", Category: "mainstream"},
	{Domain: "theguardian.com", Category: "mainstream"},
	{Domain: "telegraph.co.uk", Category: "mainstream"},
	{Domain: "independent.co.uk", Category: "mainstream"},
	{Domain: "lemonde.fr", Category: "mainstream"},
	{Domain: "elpais.com", Category: "mainstream"},

	// Wire services
	{Domain: "reuters.com", Category: "wire"},
	{Domain: "apnews.com", Category: "wire"},
	{Domain: "afp.com", Category: "wire"},

	// Tech
	{Domain: "techcrunch.com", Category: "tech"},
	{Domain: "theverge.com", Category: "tech"},
	{Domain: "wired.com", Category: "tech"},
	{Domain: "arstechnica.com", Category: "tech"},

	// Business
	{Domain: "bloomberg.com", Category: "business"},
	{Domain: "forbes.com", Category: "business"},
	{Domain: "fortune.com", Category: "business"},
	{Domain: "businessinsider.com", Category: "business"},
	{Domain: "wsj.com", Category: "business"},
}
