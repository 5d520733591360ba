package calendar

// CSS selectors for the Forex Factory calendar table. Isolated here because
// the source's DOM changes more often than the parsing logic around it —
// update these when scraping breaks.
const (
	selectorRow      = ".calendar__row"
	selectorDate     = ".calendar__date"
	selectorTime     = ".calendar__time"
	selectorCurrency = ".calendar__currency"
	selectorImpact   = ".calendar__impact span"
	selectorEvent    = ".calendar__event"
	selectorActual   = ".calendar__actual"
	selectorForecast = ".calendar__forecast"
	selectorPrevious = ".calendar__previous"

	waitForTable = ".calendar__table"
)

// botChallengeMarkers are substrings that show up in rendered-HTML
// challenge pages (Cloudflare-style interstitials) instead of the calendar.
var botChallengeMarkers = []string{
	"checking your browser",
	"just a moment",
	"verify you are human",
	"attention required",
}
