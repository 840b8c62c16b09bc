package audit

// canonicalField describes one logical field the rule engine can use
// and the header aliases it is known under in finance exports. Aliases
// are ordered by priority: the first alias present in the uploaded
// table wins, regardless of column position.
type canonicalField struct {
	Name    string
	Aliases []string
}

// fieldCatalog is the canonical field catalog for disbursement
// ledgers. Most aliases are the Korean headers produced by the ERP
// export screens.
var fieldCatalog = []canonicalField{
	{Name: "amount", Aliases: []string{"결의금액", "소계", "공급가액", "금액"}},
	{Name: "vat", Aliases: []string{"부가가치세", "부가세"}},
	{Name: "payable_balance", Aliases: []string{"미지급금", "미지급금액"}},
	{Name: "transaction_date", Aliases: []string{"거래일자", "지급예정일"}},
	{Name: "creation_date", Aliases: []string{"생성일자", "작성일자"}},
	{Name: "description", Aliases: []string{"내용", "계정명", "적요"}},
	{Name: "payee", Aliases: []string{"지급거래처", "거래처", "예금주"}},
	{Name: "account", Aliases: []string{"계좌번호"}},
	{Name: "account_name", Aliases: []string{"계정", "계정명"}},
	{Name: "drafter", Aliases: []string{"기안자성명", "기안자부서", "기안자"}},
	{Name: "evidence_type", Aliases: []string{"증빙유형", "증빙"}},
	{Name: "doc_no", Aliases: []string{"결의서번호", "문서번호"}},
	{Name: "settlement_status", Aliases: []string{"정산대상상태", "결의상태"}},
	{Name: "return_flag", Aliases: []string{"반납여부"}},
	{Name: "income_type", Aliases: []string{"소득유형", "소득구분"}},
	{Name: "taxable_flag", Aliases: []string{"과세사업여부", "과세여부"}},
	{Name: "pay_group", Aliases: []string{"지급그룹"}},
}

// CanonicalFields lists the catalog field names in catalog order.
func CanonicalFields() []string {
	names := make([]string, len(fieldCatalog))
	for i, f := range fieldCatalog {
		names[i] = f.Name
	}
	return names
}

// IsCanonicalField reports whether name is in the catalog.
func IsCanonicalField(name string) bool {
	for _, f := range fieldCatalog {
		if f.Name == name {
			return true
		}
	}
	return false
}
