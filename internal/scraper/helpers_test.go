package scraper

import "time"

var timeZero = time.Time{}
