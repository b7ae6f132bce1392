package mpegts

var (
	ParsePATSection = parsePATSection
	ParsePMTSection = parsePMTSection
)
