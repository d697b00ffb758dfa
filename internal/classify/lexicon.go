package classify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Lexicon holds the curated vocabularies a Classifier matches against.
// Each map goes from tag to the keywords that signal it.
type Lexicon struct {
	Persona     map[string][]string `yaml:"persona"`
	Industry    map[string][]string `yaml:"industry"`
	Event       map[string][]string `yaml:"event"`
	Instruments map[string][]string `yaml:"instruments"`
}

// DefaultLexicon returns the built-in vocabulary for a Taiwan/US equities forum
func DefaultLexicon() Lexicon {
	return Lexicon{
		Persona: map[string][]string{
			"technical": {
				"technical analysis", "breakout", "support", "resistance", "moving average", "macd", "rsi",
				"kd", "candlestick", "volume", "技術面", "均線", "突破", "支撐", "壓力", "型態", "成交量", "k線",
			},
			"fundamental": {
				"valuation", "p/e", "eps", "revenue", "margin", "cash flow", "guidance",
				"基本面", "本益比", "營收", "毛利率", "獲利", "現金流", "財測",
			},
			"macro": {
				"fed", "inflation", "cpi", "interest rate", "rate cut", "rate hike", "treasury", "gdp", "tariff",
				"聯準會", "通膨", "升息", "降息", "利率", "關稅", "總經",
			},
			"news": {
				"breaking", "announces", "report", "headline", "快訊", "新聞", "公告", "消息",
			},
			"dividend_investor": {
				"dividend", "yield", "etf", "passive", "股息", "殖利率", "存股", "配息",
			},
			"retail_sentiment": {
				"meme", "retail", "short squeeze", "fomo", "散戶", "韭菜", "追高", "恐慌",
			},
		},
		Industry: map[string][]string{
			"semiconductor": {
				"semiconductor", "chip", "chips", "foundry", "wafer", "tsmc", "nvidia", "asml", "euv", "cowos",
				"半導體", "晶圓", "晶片", "台積電", "聯電", "聯發科", "封測", "先進製程",
			},
			"ai": {
				"artificial intelligence", "ai server", "genai", "llm", "gpu", "data center",
				"人工智慧", "ai伺服器", "生成式", "算力", "資料中心",
			},
			"ev": {
				"electric vehicle", "ev", "tesla", "battery", "charging", "電動車", "特斯拉", "電池", "充電樁",
			},
			"biotech": {
				"biotech", "pharma", "fda", "clinical trial", "vaccine", "生技", "新藥", "臨床", "疫苗",
			},
			"finance": {
				"bank", "insurer", "brokerage", "fintech", "金控", "銀行", "壽險", "證券",
			},
			"shipping": {
				"shipping", "container freight", "freight rate", "evergreen", "航運", "貨櫃", "運價", "長榮", "陽明", "萬海",
			},
			"electronics": {
				"pcb", "server", "notebook", "smartphone", "foxconn", "電子", "伺服器", "鴻海", "廣達", "筆電", "手機",
			},
		},
		Event: map[string][]string{
			"earnings": {
				"earnings", "quarterly results", "beats estimates", "misses estimates", "財報", "法說會", "季報", "年報",
			},
			"limit_up":   {"limit up", "漲停", "亮燈"},
			"limit_down": {"limit down", "跌停", "鎖跌停"},
			"dividend":   {"ex-dividend", "dividend announcement", "除息", "除權", "填息"},
			"merger":     {"merger", "acquisition", "takeover", "buyout", "併購", "收購", "合併"},
			"guidance":   {"raises guidance", "cuts guidance", "outlook", "上修", "下修", "展望"},
			"surge":      {"surges", "soars", "rallies", "jumps", "大漲", "飆漲", "噴出"},
			"plunge":     {"plunges", "tumbles", "sinks", "crashes", "大跌", "重挫", "崩跌"},
		},
		Instruments: map[string][]string{
			"2330": {"台積電", "tsmc"},
			"2303": {"聯電", "umc"},
			"2454": {"聯發科", "mediatek"},
			"2317": {"鴻海", "foxconn"},
			"2382": {"廣達", "quanta"},
			"2603": {"長榮", "evergreen marine"},
			"2609": {"陽明"},
			"2615": {"萬海"},
			"0050": {"元大台灣50"},
			"nvda": {"nvidia", "輝達"},
			"tsla": {"tesla", "特斯拉"},
			"aapl": {"apple", "蘋果"},
		},
	}
}

// Merge returns l with extra's keywords added per tag
func (l Lexicon) Merge(extra Lexicon) Lexicon {
	return Lexicon{
		Persona:     mergeVocab(l.Persona, extra.Persona),
		Industry:    mergeVocab(l.Industry, extra.Industry),
		Event:       mergeVocab(l.Event, extra.Event),
		Instruments: mergeVocab(l.Instruments, extra.Instruments),
	}
}

func mergeVocab(base, extra map[string][]string) map[string][]string {
	out := make(map[string][]string, len(base)+len(extra))
	for tag, kws := range base {
		out[tag] = append([]string(nil), kws...)
	}
	for tag, kws := range extra {
		out[tag] = append(out[tag], kws...)
	}
	return out
}

// LoadLexicon reads a YAML vocabulary from path. Sections present in the file replace
// the matching built-in section; absent sections keep the defaults.
func LoadLexicon(path string) (Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Lexicon{}, fmt.Errorf("failed to read lexicon %s: %w", path, err)
	}
	var file Lexicon
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Lexicon{}, fmt.Errorf("failed to parse lexicon %s: %w", path, err)
	}

	lex := DefaultLexicon()
	if len(file.Persona) > 0 {
		lex.Persona = file.Persona
	}
	if len(file.Industry) > 0 {
		lex.Industry = file.Industry
	}
	if len(file.Event) > 0 {
		lex.Event = file.Event
	}
	if len(file.Instruments) > 0 {
		lex.Instruments = file.Instruments
	}
	return lex, nil
}
