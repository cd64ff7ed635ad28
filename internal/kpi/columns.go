package kpi

// JoinName identifies an optional join a view can take on.
type JoinName string

const (
	// JoinLatestPrices brings the latest purchase/sell price snapshot per pharmacy and product.
	JoinLatestPrices JoinName = "LATEST_PRICES"
	// JoinGlobalProduct brings the network-wide product dimension (segments, groups, list prices).
	JoinGlobalProduct JoinName = "GLOBAL_PRODUCT"
)

// joinOrder fixes the rendering order of join fragments.
var joinOrder = []JoinName{JoinGlobalProduct, JoinLatestPrices}

// ColumnMap maps filter dimensions to qualified column names. An empty entry means
// the view cannot be filtered on that dimension.
type ColumnMap struct {
	PharmacyID    string
	ProductCode   string
	ProductName   string
	Laboratory    string
	Categories    map[CategoryType]string
	Group         string
	TvaRate       string
	Reimbursement string
	IsGeneric     string

	PurchasePriceNet   string
	PurchasePriceGross string
	SellPrice          string
	Discount           string
	Margin             string
}

// View describes a pre-aggregated materialized view and how it joins its dimensions.
type View struct {
	Name       string
	Alias      string
	DateColumn string
	// NativeCategory is the category level carried by the view itself.
	NativeCategory CategoryType
	Columns        ColumnMap
	Joins          map[JoinName]string
}

// From renders the FROM fragment.
func (v View) From() string {
	return v.Name + " " + v.Alias
}

// ProductStatsView is the daily per-pharmacy, per-product fact view all KPIs read.
var ProductStatsView = View{
	Name:           "mv_product_stats_daily",
	Alias:          "mv",
	DateColumn:     "mv.stat_date",
	NativeCategory: CategorySegmentL1,
	Columns: ColumnMap{
		PharmacyID:  "mv.pharmacy_id",
		ProductCode: "mv.code_13_ref",
		ProductName: "mv.product_name",
		Laboratory:  "mv.laboratory_name",
		Categories: map[CategoryType]string{
			CategorySegmentL0: "gp.bcb_segment_l0",
			CategorySegmentL1: "mv.bcb_segment_l1",
			CategorySegmentL2: "gp.bcb_segment_l2",
			CategorySegmentL3: "gp.bcb_segment_l3",
			CategorySegmentL4: "gp.bcb_segment_l4",
			CategorySegmentL5: "gp.bcb_segment_l5",
			CategoryFamily:    "gp.bcb_family",
		},
		Group:         "gp.bcb_generic_group",
		TvaRate:       "mv.tva_rate",
		Reimbursement: "mv.reimbursement_status",
		IsGeneric:     "mv.is_generic",

		PurchasePriceNet:   "lp.weighted_average_price",
		PurchasePriceGross: "gp.prix_achat_ht_fabricant",
		SellPrice:          "lp.price_with_tax",
		Discount:           "lp.discount_percentage",
		Margin:             "lp.margin_percentage",
	},
	Joins: map[JoinName]string{
		JoinGlobalProduct: "JOIN data_globalproduct gp ON gp.code_13_ref = mv.code_13_ref",
		JoinLatestPrices:  "JOIN mv_latest_product_prices lp ON lp.pharmacy_id = mv.pharmacy_id AND lp.code_13_ref = mv.code_13_ref",
	},
}
