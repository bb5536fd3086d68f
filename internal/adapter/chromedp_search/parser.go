package chromedp_search

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
	"github.com/tomichandesu/research-tool-sub000/pkg/utils"
)

// errMadeInJapan marks detail pages whose product is domestically made and
// therefore cannot be sourced abroad.
var errMadeInJapan = errors.New("product is made in Japan")

var (
	numberRe      = regexp.MustCompile(`\d+(?:\.\d+)?`)
	ratingRe      = regexp.MustCompile(`のうち\s*(\d+(?:\.\d+)?)`)
	ratingOutOfRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*out\s*of`)
	rankOldRe     = regexp.MustCompile(`売れ筋ランキング[:：]\s*([\d,]+)位\s*(?:[(（]([^)）]+))?`)
	rankDashRe    = regexp.MustCompile(`売れ筋ランキング[:：]?\s*-\s*([\d,]+)位\s*([^(（\s]+)`)
	rankRe        = regexp.MustCompile(`売れ筋ランキング[:：]?\s*([^-]+?)\s*-\s*([\d,]+)位`)
	dimensionsRe  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*[x×]\s*(\d+(?:\.\d+)?)\s*[x×]\s*(\d+(?:\.\d+)?)\s*(?:cm|センチメートル|センチ)`)
	weightRe      = regexp.MustCompile(`(?i)(?:商品の重量|発送重量|重量)[:：\s]*(\d+(?:\.\d+)?)\s*(kg|キログラム|g|グラム)`)
	weightBareRe  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(キログラム|グラム)`)
	offerIDRe     = regexp.MustCompile(`_(\d{9,})$`)
	sellerIDRe    = regexp.MustCompile(`b2b-(\d+)`)
)

var madeInJapanMarkers = []string{"日本製", "made in japan", "国産", "日本産", "日本国内生産", "日本国内製造"}

var detailSections = []string{
	"#detailBulletsWrapper_feature_div",
	"#productDetails_detailBullets_sections1",
	"#productDetails_db_sections",
	"#productDetails_techSpec_section_1",
	"#prodDetails",
}

// squash collapses runs of whitespace into single spaces.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// firstInt extracts the first integer in s, ignoring thousands separators.
func firstInt(s string) (int, bool) {
	m := numberRe.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

func firstFloat(s string) (float64, bool) {
	m := numberRe.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	return f, err == nil
}

// parseRating reads "5つ星のうち4.1" and "4.1 out of 5" forms.
func parseRating(s string) (float64, bool) {
	if m := ratingRe.FindStringSubmatch(s); m != nil {
		f, err := strconv.ParseFloat(m[1], 64)
		return f, err == nil
	}
	if m := ratingOutOfRe.FindStringSubmatch(s); m != nil {
		f, err := strconv.ParseFloat(m[1], 64)
		return f, err == nil
	}
	return 0, false
}

// firstText returns the trimmed text of the first selector that yields any.
func firstText(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if t := strings.TrimSpace(s.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// parseSearchResults extracts listings from a destination search result page.
// Only search-level fields are filled; rank, category and fulfillment come
// from the detail page.
func parseSearchResults(doc *goquery.Document, base *url.URL, organicOnly bool) []entity.CandidateListing {
	var out []entity.CandidateListing
	seen := make(map[string]struct{})
	doc.Find(`div[data-component-type="s-search-result"]`).Each(func(_ int, item *goquery.Selection) {
		asin, _ := item.Attr("data-asin")
		asin = strings.TrimSpace(asin)
		if asin == "" {
			return
		}
		if _, dup := seen[asin]; dup {
			return
		}
		if organicOnly && item.Find("span.puis-label-popover-default").Length() > 0 {
			return
		}
		seen[asin] = struct{}{}

		l := entity.CandidateListing{
			ID:             asin,
			Title:          squash(firstText(item, "h2 a span", "h2 span.a-text-normal", "h2")),
			VariationCount: 1,
		}
		if p, ok := firstInt(firstText(item, "span.a-price span.a-offscreen", "span.a-price-whole")); ok {
			l.Price = p
		}
		l.ImageURL, _ = item.Find("img.s-image").First().Attr("src")
		if href, ok := item.Find("h2 a").First().Attr("href"); ok {
			l.ProductURL = utils.ResolveURL(base, href)
		} else if href, ok := item.Find(`a[href*="/dp/"]`).First().Attr("href"); ok {
			l.ProductURL = utils.ResolveURL(base, href)
		}
		if n, ok := firstInt(firstText(item, `a[href*="customerReviews"] span`, `span[aria-label*="レビュー"]`)); ok {
			l.ReviewCount = n
		}
		star := item.Find(`i[class*="a-star"] span.a-icon-alt`).First().Text()
		if star == "" {
			star, _ = item.Find(`span[aria-label*="5つ星"]`).First().Attr("aria-label")
		}
		if r, ok := parseRating(star); ok {
			l.Rating = &r
		}
		out = append(out, l)
	})
	return out
}

// parseProductDetail completes l from its detail page. It returns
// errMadeInJapan when the page advertises domestic manufacture.
func parseProductDetail(doc *goquery.Document, l *entity.CandidateListing) error {
	if madeInJapan(doc) {
		return errMadeInJapan
	}

	if t := squash(firstText(doc.Selection, "#productTitle", "#title", "h1.product-title-word-break")); t != "" {
		l.Title = t
	}
	if p, ok := firstInt(firstText(doc.Selection,
		"#corePrice_feature_div span.a-price span.a-offscreen",
		"#priceblock_ourprice",
		"#priceblock_dealprice",
		"#priceblock_saleprice",
		"span.a-price span.a-offscreen",
		"#price_inside_buybox",
	)); ok && p > 0 {
		l.Price = p
	}
	if img := mainImage(doc); img != "" {
		l.ImageURL = img
	}

	details := detailText(doc)
	l.Rank, l.Category = parseRank(details)

	if n, ok := firstInt(firstText(doc.Selection, "#acrCustomerReviewText", "#acrCustomerReviewLink", `span[data-hook="total-review-count"]`)); ok {
		l.ReviewCount = n
	}
	for _, sel := range []string{"#acrPopover", `span[data-hook="rating-out-of-text"]`, "i.a-icon-star span.a-icon-alt"} {
		node := doc.Find(sel).First()
		text, _ := node.Attr("title")
		if text == "" {
			text = node.Text()
		}
		if r, ok := parseRating(text); ok {
			l.Rating = &r
			break
		}
	}

	shippedBy, soldBy := fulfillmentInfo(doc)
	l.Fulfillment = classifyFulfillment(shippedBy, soldBy, doc.Find("i.a-icon-prime, span.a-icon-prime, #prime-badge").Length() > 0)
	l.SellerName = soldBy
	if l.SellerName == "" {
		l.SellerName = firstText(doc.Selection, "#sellerProfileTriggerId", "#merchant-info a", "#tabular-buybox-truncate-1")
	}

	l.VariationCount = variationCount(doc)
	l.Dimensions = parseDimensions(details)
	l.WeightKG = parseWeight(details)
	return nil
}

func madeInJapan(doc *goquery.Document) bool {
	for _, sel := range []string{"#productTitle", "#feature-bullets", "#productDescription", "#detailBulletsWrapper_feature_div", "#productDetails_detailBullets_sections1", "#aplus"} {
		// 中国産 is foreign made.
		text := strings.ReplaceAll(strings.ToLower(doc.Find(sel).Text()), "中国産", "")
		if text == "" {
			continue
		}
		for _, marker := range madeInJapanMarkers {
			if strings.Contains(text, marker) {
				return true
			}
		}
	}
	return false
}

func mainImage(doc *goquery.Document) string {
	for _, sel := range []string{"#landingImage", "#imgBlkFront", "#main-image", "img[data-a-dynamic-image]"} {
		node := doc.Find(sel).First()
		if src, ok := node.Attr("src"); ok && strings.HasPrefix(src, "http") {
			return src
		}
		if dyn, ok := node.Attr("data-a-dynamic-image"); ok {
			if i := strings.Index(dyn, `"https://`); i >= 0 {
				rest := dyn[i+1:]
				if j := strings.IndexByte(rest, '"'); j > 0 {
					return rest[:j]
				}
			}
		}
	}
	return ""
}

// detailText concatenates the product detail sections, whitespace squashed.
func detailText(doc *goquery.Document) string {
	var parts []string
	for _, sel := range detailSections {
		if t := squash(doc.Find(sel).Text()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// parseRank reads the top-level best seller rank and its category.
// A zero rank means the page did not expose one.
func parseRank(details string) (int, string) {
	if m := rankOldRe.FindStringSubmatch(details); m != nil {
		rank, _ := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		category := m[2]
		if i := strings.Index(category, " - "); i >= 0 {
			category = category[:i]
		}
		return rank, strings.TrimSpace(category)
	}
	if m := rankDashRe.FindStringSubmatch(details); m != nil {
		rank, _ := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		return rank, strings.TrimSpace(m[2])
	}
	if m := rankRe.FindStringSubmatch(details); m != nil {
		rank, _ := strconv.Atoi(strings.ReplaceAll(m[2], ",", ""))
		return rank, strings.TrimSpace(m[1])
	}
	return 0, ""
}

// fulfillmentInfo returns who ships and who sells the buy-box offer.
func fulfillmentInfo(doc *goquery.Document) (shippedBy, soldBy string) {
	shippedBy = squash(doc.Find(`[tabular-attribute-name="出荷元"] .tabular-buybox-text, [tabular-attribute-name="出荷元"]`).Last().Text())
	soldBy = squash(doc.Find(`[tabular-attribute-name="販売元"] .tabular-buybox-text, [tabular-attribute-name="販売元"]`).Last().Text())
	if shippedBy != "" || soldBy != "" {
		return shippedBy, soldBy
	}

	var lines []string
	for _, line := range strings.Split(doc.Find("#tabular-buybox").Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	for i := 0; i+1 < len(lines); i++ {
		if strings.Contains(lines[i], "出荷元") {
			shippedBy = lines[i+1]
		}
		if strings.Contains(lines[i], "販売元") {
			soldBy = lines[i+1]
		}
	}
	if shippedBy != "" || soldBy != "" {
		return shippedBy, soldBy
	}

	label := doc.Find("div.offer-display-feature-label").First().Text()
	if strings.Contains(label, "出荷元") && strings.Contains(label, "販売元") {
		v := squash(doc.Find("div.offer-display-feature-text").First().Text())
		return v, v
	}

	if strings.Contains(strings.ToLower(doc.Find("#fulfillerInfoFeature_feature_div").Text()), "amazon") {
		shippedBy = "Amazon.co.jp"
	}
	soldBy = squash(doc.Find("#merchant-info").Text())
	return shippedBy, soldBy
}

func isAmazonEntity(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	return n != "" && (strings.Contains(n, "amazon") || strings.Contains(n, "アマゾン"))
}

// classifyFulfillment treats marketplace shipping for a third-party seller as
// FBA, marketplace shipping and selling as a direct sale, and anything else as
// merchant fulfilled. A prime badge decides only when both parties are unknown.
func classifyFulfillment(shippedBy, soldBy string, prime bool) entity.Fulfillment {
	shipAmazon, sellAmazon := isAmazonEntity(shippedBy), isAmazonEntity(soldBy)
	switch {
	case shipAmazon && sellAmazon:
		return entity.FulfillmentDirect
	case shipAmazon:
		return entity.FulfillmentFBA
	case shippedBy == "" && soldBy == "" && prime:
		return entity.FulfillmentFBA
	default:
		return entity.FulfillmentFBM
	}
}

// variationCount counts selectable variations; 1 when the listing has none.
func variationCount(doc *goquery.Document) int {
	count := 0
	for _, sel := range []string{
		"#variation_color_name option",
		"#variation_size_name option",
		"#variation_style_name option",
		"#variation_pattern_name option",
		`select[name*="variation"] option`,
	} {
		n := doc.Find(sel).Length()
		if n > 1 {
			n-- // placeholder entry
		}
		count = max(count, n)
	}
	for _, sel := range []string{
		"#variation_color_name li.swatchAvailable",
		"#variation_size_name li.swatchAvailable",
		"#variation_style_name li.swatchAvailable",
		"ul.a-unordered-list.swatches li.swatchAvailable",
		"#variation_color_name img",
		"#twister-plus-inline-twister-card li",
		`div[id*="variation"] ul li[data-dp-url]`,
	} {
		count = max(count, doc.Find(sel).Length())
	}
	return max(count, 1)
}

func parseDimensions(details string) *[3]float64 {
	m := dimensionsRe.FindStringSubmatch(details)
	if m == nil {
		return nil
	}
	var dims [3]float64
	for i := range dims {
		f, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return nil
		}
		dims[i] = f
	}
	return &dims
}

func parseWeight(details string) *float64 {
	m := weightRe.FindStringSubmatch(details)
	if m == nil {
		m = weightBareRe.FindStringSubmatch(details)
	}
	if m == nil {
		return nil
	}
	w, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	switch strings.ToLower(m[2]) {
	case "g", "グラム":
		w /= 1000
	}
	return &w
}

// offerCardSelectors are tried in order until one matches any element.
var offerCardSelectors = []string{
	`div[class*="searchOfferWrapper"]`,
	`div[class*="offer-list"] div[class*="offer-item"]`,
	`[class*="offerCard"]`,
	`[data-renderkey]`,
}

// parseOfferCards extracts source-marketplace offers from an image search
// result page. Cards without a readable price are skipped.
func parseOfferCards(doc *goquery.Document, limit int) []entity.SourcingCandidate {
	var cards *goquery.Selection
	for _, sel := range offerCardSelectors {
		if cards = doc.Find(sel); cards.Length() > 0 {
			break
		}
	}
	var out []entity.SourcingCandidate
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if limit > 0 && len(out) >= limit {
			return false
		}
		c := entity.SourcingCandidate{
			PriceCNY:   offerPrice(card),
			ImageURL:   offerImage(card),
			ProductURL: offerURL(card),
			Title:      offerTitle(card),
			ShopName:   firstText(card, `div[class*="overseasSellerInfoWrap"] span`, `div[class*="sellerInfo"] span`, `span[class*="company"]`, "span.company-name", "a.company"),
			ShopURL:    offerShopURL(card),
			MinOrder:   1,
		}
		if c.PriceCNY <= 0 {
			return true
		}
		if n, ok := firstInt(firstText(card, `div[class*="overseasTagInfoWrap"]`, `span[class*="moq"]`, `span[class*="minOrder"]`, "span.min-order")); ok && n > 0 {
			c.MinOrder = n
		}
		out = append(out, c)
		return true
	})
	return out
}

func offerPrice(card *goquery.Selection) float64 {
	if num := card.Find(`span[class*="number"]`).First().Text(); strings.TrimSpace(num) != "" {
		if f, ok := firstFloat(num + card.Find(`span[class*="unit"]`).First().Text()); ok {
			return f
		}
	}
	for _, sel := range []string{`div[class*="priceWrap"]`, "span.price", "span.offer-price", "div.price", "em.value", `span[class*="price"]`} {
		if f, ok := firstFloat(card.Find(sel).First().Text()); ok {
			return f
		}
	}
	return 0
}

func offerImage(card *goquery.Selection) string {
	var found string
	card.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		for _, attr := range []string{"data-lazy-src", "data-src", "src"} {
			if u, ok := img.Attr(attr); ok && strings.Contains(u, "alicdn.com") {
				found = strings.TrimSuffix(utils.ResolveURL(nil, u), ".webp")
				return false
			}
		}
		return true
	})
	return found
}

func offerURL(card *goquery.Selection) string {
	if key, ok := card.Attr("data-renderkey"); ok {
		if m := offerIDRe.FindStringSubmatch(key); m != nil {
			return "https://detail.1688.com/offer/" + m[1] + ".html"
		}
	}
	if id, ok := card.Attr("data-offer-id"); ok && id != "" {
		if _, err := strconv.ParseUint(id, 10, 64); err == nil {
			return "https://detail.1688.com/offer/" + id + ".html"
		}
	}
	if href, ok := card.Attr("href"); ok && strings.Contains(href, "detail.1688.com") {
		return utils.ResolveURL(nil, href)
	}
	href, _ := card.Find(`a[href*="detail.1688.com"]`).First().Attr("href")
	return utils.ResolveURL(nil, href)
}

func offerShopURL(card *goquery.Selection) string {
	if key, ok := card.Attr("data-renderkey"); ok {
		if m := sellerIDRe.FindStringSubmatch(key); m != nil {
			id := m[1]
			return "https://shop" + id[max(0, len(id)-7):] + ".1688.com/"
		}
	}
	href, _ := card.Find(`a[href*="winport.1688.com"], a[href*="shop"][href*="1688.com"]`).First().Attr("href")
	return utils.ResolveURL(nil, href)
}

func offerTitle(card *goquery.Selection) string {
	for _, sel := range []string{`div[class*="titleWrap"]`, `span[class*="offerTitle"]`, `div[class*="TitleWrap"] span`, "a.offer-title", "div.title", "a[title]"} {
		node := card.Find(sel).First()
		t, _ := node.Attr("title")
		if t == "" {
			t = node.Text()
		}
		if t = squash(t); len([]rune(t)) > 3 {
			return t
		}
	}
	return ""
}
