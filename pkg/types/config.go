package types

// LoaderConfig 年度源文件加载配置
type LoaderConfig struct {
	DataDir     string // 数据根目录, 文件位于 {DataDir}/{product}/{month}/{year}.csv
	Encoding    string // 源文件编码: latin1 / utf-8
	DateColumn  string // 日期列名, 为空时按常见别名匹配
	CloseColumn string // 收盘价列名, 为空时按常见别名匹配
	DateFormat  string // 日期格式 (日/月/年)
	Delimiter   rune   // 字段分隔符
}

// DefaultLoaderConfig 默认加载配置
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		DataDir:    "Data",
		Encoding:   "latin1",
		DateFormat: "2/1/2006",
		Delimiter:  ',',
	}
}

// EngineConfig 默认预测引擎配置
type EngineConfig struct {
	AROrder       int     // 差分序列上的自回归阶数
	IntervalWidth float64 // 预测区间宽度 (0-1)
}

// DefaultEngineConfig 默认预测引擎配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		AROrder:       2,
		IntervalWidth: 0.8,
	}
}
