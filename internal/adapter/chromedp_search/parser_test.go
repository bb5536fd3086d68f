package chromedp_search

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

const searchPage = `<html><body>
<div data-component-type="s-search-result" data-asin="B0AAA11111">
  <h2><a href="/dp/B0AAA11111?ref=sr_1"><span>折りたたみ 収納ボックス</span></a></h2>
  <img class="s-image" src="https://m.media-amazon.com/images/I/a.jpg">
  <span class="a-price"><span class="a-offscreen">￥2,480</span></span>
  <i class="a-icon a-star-small-4"><span class="a-icon-alt">5つ星のうち3.8</span></i>
  <a href="/dp/B0AAA11111#customerReviews"><span>1,204</span></a>
</div>
<div data-component-type="s-search-result" data-asin="B0SPONSOR1">
  <span class="puis-label-popover-default">スポンサー</span>
  <h2><a href="/dp/B0SPONSOR1"><span>広告商品</span></a></h2>
</div>
<div data-component-type="s-search-result" data-asin="">
  <h2><a href="/gp/x"><span>no asin</span></a></h2>
</div>
<div data-component-type="s-search-result" data-asin="B0AAA11111">
  <h2><a href="/dp/B0AAA11111"><span>duplicate</span></a></h2>
</div>
</body></html>`

func TestParseSearchResults(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("https://www.amazon.co.jp")
	doc := mustDoc(t, searchPage)

	got := parseSearchResults(doc, base, true)
	if len(got) != 1 {
		t.Fatalf("listings = %+v", got)
	}
	l := got[0]
	if l.ID != "B0AAA11111" || l.Title != "折りたたみ 収納ボックス" {
		t.Fatalf("listing = %+v", l)
	}
	if l.Price != 2480 || l.ReviewCount != 1204 {
		t.Fatalf("price=%d reviews=%d", l.Price, l.ReviewCount)
	}
	if l.Rating == nil || *l.Rating != 3.8 {
		t.Fatalf("rating = %v", l.Rating)
	}
	if l.ProductURL != "https://www.amazon.co.jp/dp/B0AAA11111?ref=sr_1" {
		t.Fatalf("product url = %q", l.ProductURL)
	}
	if l.VariationCount != 1 {
		t.Fatalf("variations = %d", l.VariationCount)
	}

	if all := parseSearchResults(doc, base, false); len(all) != 2 {
		t.Fatalf("with sponsored: %d listings", len(all))
	}
}

const detailPage = `<html><body>
<span id="productTitle">  収納ボックス 折りたたみ  大容量 </span>
<div id="corePrice_feature_div"><span class="a-price"><span class="a-offscreen">￥2,980</span></span></div>
<img id="landingImage" data-a-dynamic-image='{"https://m.media-amazon.com/images/I/big.jpg":[1500,1500]}'>
<span id="acrCustomerReviewText">32個の評価</span>
<span id="acrPopover" title="5つ星のうち4.1"></span>
<div id="tabular-buybox">
  <div tabular-attribute-name="出荷元"><span class="tabular-buybox-text">Amazon</span></div>
  <div tabular-attribute-name="販売元"><span class="tabular-buybox-text">ミドリ商店</span></div>
</div>
<div id="variation_color_name"><select name="variation_color"><option>選択</option><option>赤</option><option>青</option></select></div>
<div id="detailBulletsWrapper_feature_div">
  梱包サイズ : 30 x 20 x 10 cm; 800 g
  商品の重量 : 800 g
  Amazon 売れ筋ランキング: - 12,345位ホーム＆キッチン (ホーム＆キッチンの売れ筋ランキングを見る)
</div>
</body></html>`

func TestParseProductDetail(t *testing.T) {
	t.Parallel()

	l := entity.CandidateListing{ID: "B0AAA11111", Price: 2480}
	if err := parseProductDetail(mustDoc(t, detailPage), &l); err != nil {
		t.Fatal(err)
	}
	if l.Title != "収納ボックス 折りたたみ 大容量" || l.Price != 2980 {
		t.Fatalf("title=%q price=%d", l.Title, l.Price)
	}
	if l.ImageURL != "https://m.media-amazon.com/images/I/big.jpg" {
		t.Fatalf("image = %q", l.ImageURL)
	}
	if l.Rank != 12345 || l.Category != "ホーム＆キッチン" {
		t.Fatalf("rank=%d category=%q", l.Rank, l.Category)
	}
	if l.ReviewCount != 32 || l.Rating == nil || *l.Rating != 4.1 {
		t.Fatalf("reviews=%d rating=%v", l.ReviewCount, l.Rating)
	}
	if l.Fulfillment != entity.FulfillmentFBA || l.SellerName != "ミドリ商店" {
		t.Fatalf("fulfillment=%s seller=%q", l.Fulfillment, l.SellerName)
	}
	if l.VariationCount != 2 {
		t.Fatalf("variations = %d", l.VariationCount)
	}
	if l.Dimensions == nil || *l.Dimensions != [3]float64{30, 20, 10} {
		t.Fatalf("dimensions = %v", l.Dimensions)
	}
	if l.WeightKG == nil || *l.WeightKG != 0.8 {
		t.Fatalf("weight = %v", l.WeightKG)
	}
}

func TestParseProductDetailMadeInJapan(t *testing.T) {
	t.Parallel()

	page := `<html><body><span id="productTitle">木製 まな板 日本製</span></body></html>`
	var l entity.CandidateListing
	if err := parseProductDetail(mustDoc(t, page), &l); !errors.Is(err, errMadeInJapan) {
		t.Fatalf("err = %v", err)
	}

	page = `<html><body><span id="productTitle">まな板 中国産 竹</span></body></html>`
	if err := parseProductDetail(mustDoc(t, page), &l); err != nil {
		t.Fatalf("foreign product rejected: %v", err)
	}
}

func TestParseRank(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		rank     int
		category string
	}{
		{"rank then category", "Amazon 売れ筋ランキング: - 9,034位おもちゃ (おもちゃの売れ筋ランキングを見る)", 9034, "おもちゃ"},
		{"category then rank", "Amazon 売れ筋ランキング おもちゃ - 9,034位 (おもちゃの売れ筋ランキングを見る)", 9034, "おもちゃ"},
		{"legacy", "売れ筋ランキング: 5,234位 (ホーム＆キッチン - 売れ筋ランキングを見る)", 5234, "ホーム＆キッチン"},
		{"missing", "登録情報 ASIN B0AAA11111", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rank, category := parseRank(tt.text)
			if rank != tt.rank || category != tt.category {
				t.Fatalf("got (%d, %q), want (%d, %q)", rank, category, tt.rank, tt.category)
			}
		})
	}
}

func TestClassifyFulfillment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		shipped, sold string
		prime         bool
		want          entity.Fulfillment
	}{
		{"Amazon", "ミドリ商店", false, entity.FulfillmentFBA},
		{"Amazon.co.jp", "Amazon.co.jp", false, entity.FulfillmentDirect},
		{"ミドリ商店", "ミドリ商店", true, entity.FulfillmentFBM},
		{"", "", true, entity.FulfillmentFBA},
		{"", "", false, entity.FulfillmentFBM},
		{"アマゾン", "", false, entity.FulfillmentFBA},
	}
	for _, tt := range tests {
		if got := classifyFulfillment(tt.shipped, tt.sold, tt.prime); got != tt.want {
			t.Errorf("classifyFulfillment(%q, %q, %v) = %s, want %s", tt.shipped, tt.sold, tt.prime, got, tt.want)
		}
	}
}

func TestParseWeight(t *testing.T) {
	t.Parallel()

	tests := map[string]float64{
		"商品の重量: 1.5 kg": 1.5,
		"重量 : 500 g":    0.5,
		"約 2 キログラム":     2,
		"本体 250 グラム":    0.25,
	}
	for text, want := range tests {
		got := parseWeight(text)
		if got == nil || *got != want {
			t.Errorf("parseWeight(%q) = %v, want %v", text, got, want)
		}
	}
	if got := parseWeight("サイズ: 10 x 10 x 10 cm"); got != nil {
		t.Errorf("weight without unit = %v", *got)
	}
}

const offerPage = `<html><body>
<div class="searchOfferWrapper--x1" data-renderkey="1_1_normal_b2b-2218789620187ab194_847411995095">
  <img class="mainImg" src="https://cbu01.alicdn.com/img/ibank/O1.jpg.webp">
  <div class="titleWrap--t" title="折叠收纳箱 大号">折叠收纳箱 大号</div>
  <div class="priceWrap--p"><span class="number--n">26</span><span class="unit--u">.50</span></div>
  <div class="overseasTagInfoWrap--o">最小発注 2</div>
  <div class="overseasSellerInfoWrap--s"><span>义乌收纳工厂</span></div>
</div>
<div class="searchOfferWrapper--x1" data-renderkey="1_2_normal_b2b-11_123456789012">
  <img src="https://cbu01.alicdn.com/img/ibank/O2.jpg">
  <div class="titleWrap--t">无价格商品</div>
</div>
<div class="searchOfferWrapper--x1" data-offer-id="998877665544">
  <img data-src="//cbu01.alicdn.com/img/ibank/O3.jpg">
  <span class="price">¥12</span>
</div>
</body></html>`

func TestParseOfferCards(t *testing.T) {
	t.Parallel()

	got := parseOfferCards(mustDoc(t, offerPage), 10)
	if len(got) != 2 {
		t.Fatalf("offers = %+v", got)
	}
	first := got[0]
	if first.PriceCNY != 26.5 || first.MinOrder != 2 {
		t.Fatalf("price=%v min order=%d", first.PriceCNY, first.MinOrder)
	}
	if first.ImageURL != "https://cbu01.alicdn.com/img/ibank/O1.jpg" {
		t.Fatalf("image = %q", first.ImageURL)
	}
	if first.ProductURL != "https://detail.1688.com/offer/847411995095.html" {
		t.Fatalf("product url = %q", first.ProductURL)
	}
	if first.ShopURL != "https://shop9620187.1688.com/" || first.ShopName != "义乌收纳工厂" {
		t.Fatalf("shop = %q %q", first.ShopName, first.ShopURL)
	}
	if first.Title != "折叠收纳箱 大号" {
		t.Fatalf("title = %q", first.Title)
	}

	second := got[1]
	if second.PriceCNY != 12 || second.MinOrder != 1 {
		t.Fatalf("second = %+v", second)
	}
	if second.ImageURL != "https://cbu01.alicdn.com/img/ibank/O3.jpg" || second.ProductURL != "https://detail.1688.com/offer/998877665544.html" {
		t.Fatalf("second = %+v", second)
	}

	if limited := parseOfferCards(mustDoc(t, offerPage), 1); len(limited) != 1 {
		t.Fatalf("limit ignored: %d", len(limited))
	}
}
