package fulfillment

// countryAliases maps lower-case country names and common aliases to ISO
// 3166-1 alpha-2 codes.
var countryAliases = map[string]string{
	"afghanistan":                "AF",
	"albania":                    "AL",
	"algeria":                    "DZ",
	"andorra":                    "AD",
	"angola":                     "AO",
	"argentina":                  "AR",
	"armenia":                    "AM",
	"australia":                  "AU",
	"austria":                    "AT",
	"osterreich":                 "AT",
	"azerbaijan":                 "AZ",
	"bahamas":                    "BS",
	"the bahamas":                "BS",
	"bahrain":                    "BH",
	"bangladesh":                 "BD",
	"barbados":                   "BB",
	"belarus":                    "BY",
	"belgium":                    "BE",
	"belgique":                   "BE",
	"belize":                     "BZ",
	"bermuda":                    "BM",
	"bolivia":                    "BO",
	"bosnia and herzegovina":     "BA",
	"botswana":                   "BW",
	"brazil":                     "BR",
	"brasil":                     "BR",
	"brunei":                     "BN",
	"bulgaria":                   "BG",
	"cambodia":                   "KH",
	"cameroon":                   "CM",
	"canada":                     "CA",
	"cayman islands":             "KY",
	"chile":                      "CL",
	"china":                      "CN",
	"people's republic of china": "CN",
	"colombia":                   "CO",
	"costa rica":                 "CR",
	"croatia":                    "HR",
	"hrvatska":                   "HR",
	"cuba":                       "CU",
	"cyprus":                     "CY",
	"czech republic":             "CZ",
	"czechia":                    "CZ",
	"denmark":                    "DK",
	"danmark":                    "DK",
	"dominica":                   "DM",
	"dominican republic":         "DO",
	"ecuador":                    "EC",
	"egypt":                      "EG",
	"el salvador":                "SV",
	"estonia":                    "EE",
	"ethiopia":                   "ET",
	"fiji":                       "FJ",
	"finland":                    "FI",
	"suomi":                      "FI",
	"france":                     "FR",
	"georgia":                    "GE",
	"germany":                    "DE",
	"deutschland":                "DE",
	"ghana":                      "GH",
	"greece":                     "GR",
	"guatemala":                  "GT",
	"guinea":                     "GN",
	"equatorial guinea":          "GQ",
	"papua new guinea":           "PG",
	"haiti":                      "HT",
	"honduras":                   "HN",
	"hong kong":                  "HK",
	"hungary":                    "HU",
	"iceland":                    "IS",
	"india":                      "IN",
	"indonesia":                  "ID",
	"iran":                       "IR",
	"iraq":                       "IQ",
	"ireland":                    "IE",
	"republic of ireland":        "IE",
	"eire":                       "IE",
	"israel":                     "IL",
	"italy":                      "IT",
	"italia":                     "IT",
	"jamaica":                    "JM",
	"japan":                      "JP",
	"nippon":                     "JP",
	"jordan":                     "JO",
	"kazakhstan":                 "KZ",
	"kenya":                      "KE",
	"kuwait":                     "KW",
	"laos":                       "LA",
	"latvia":                     "LV",
	"lebanon":                    "LB",
	"liechtenstein":              "LI",
	"lithuania":                  "LT",
	"luxembourg":                 "LU",
	"macau":                      "MO",
	"macao":                      "MO",
	"malaysia":                   "MY",
	"maldives":                   "MV",
	"malta":                      "MT",
	"mauritius":                  "MU",
	"mexico":                     "MX",
	"méxico":                     "MX",
	"moldova":                    "MD",
	"monaco":                     "MC",
	"mongolia":                   "MN",
	"montenegro":                 "ME",
	"morocco":                    "MA",
	"mozambique":                 "MZ",
	"myanmar":                    "MM",
	"namibia":                    "NA",
	"nepal":                      "NP",
	"netherlands":                "NL",
	"the netherlands":            "NL",
	"holland":                    "NL",
	"nederland":                  "NL",
	"new zealand":                "NZ",
	"aotearoa":                   "NZ",
	"nicaragua":                  "NI",
	"niger":                      "NE",
	"nigeria":                    "NG",
	"north macedonia":            "MK",
	"norway":                     "NO",
	"norge":                      "NO",
	"oman":                       "OM",
	"pakistan":                   "PK",
	"panama":                     "PA",
	"paraguay":                   "PY",
	"peru":                       "PE",
	"philippines":                "PH",
	"poland":                     "PL",
	"polska":                     "PL",
	"portugal":                   "PT",
	"puerto rico":                "PR",
	"qatar":                      "QA",
	"romania":                    "RO",
	"russia":                     "RU",
	"russian federation":         "RU",
	"rwanda":                     "RW",
	"saudi arabia":               "SA",
	"senegal":                    "SN",
	"serbia":                     "RS",
	"singapore":                  "SG",
	"slovakia":                   "SK",
	"slovenia":                   "SI",
	"south africa":               "ZA",
	"south korea":                "KR",
	"korea":                      "KR",
	"republic of korea":          "KR",
	"spain":                      "ES",
	"espana":                     "ES",
	"españa":                     "ES",
	"sri lanka":                  "LK",
	"sweden":                     "SE",
	"sverige":                    "SE",
	"switzerland":                "CH",
	"schweiz":                    "CH",
	"suisse":                     "CH",
	"svizzera":                   "CH",
	"taiwan":                     "TW",
	"tanzania":                   "TZ",
	"thailand":                   "TH",
	"trinidad and tobago":        "TT",
	"tunisia":                    "TN",
	"turkey":                     "TR",
	"turkiye":                    "TR",
	"türkiye":                    "TR",
	"uganda":                     "UG",
	"ukraine":                    "UA",
	"united arab emirates":       "AE",
	"uae":                        "AE",
	"united kingdom":             "GB",
	"uk":                         "GB",
	"u.k.":                       "GB",
	"great britain":              "GB",
	"britain":                    "GB",
	"england":                    "GB",
	"scotland":                   "GB",
	"wales":                      "GB",
	"northern ireland":           "GB",
	"united states":              "US",
	"united states of america":   "US",
	"usa":                        "US",
	"u.s.a.":                     "US",
	"uruguay":                    "UY",
	"uzbekistan":                 "UZ",
	"venezuela":                  "VE",
	"vietnam":                    "VN",
	"viet nam":                   "VN",
	"zambia":                     "ZM",
	"zimbabwe":                   "ZW",
}
