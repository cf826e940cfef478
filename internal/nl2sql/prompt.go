package nl2sql

import (
	"fmt"
	"strings"

	"github.com/salesqa/salesqa/internal/history"
)

// NoBusinessRules stands in for the grounding context when retrieval found nothing.
const NoBusinessRules = "관련 비즈니스 규칙이 검색되지 않았습니다."

const errorHintFormat = "\n\n⚠️ 이전 시도에서 오류 발생: %s\n수정된 SQL을 생성하세요."

const generationRules = `# SQL 생성 규칙
- SELECT 문만 생성 (WITH CTE 허용)
- 매출 계산: supply_amount 사용 (부가세 제외)
- 연도 추출: EXTRACT(YEAR FROM sale_date)
- 월 추출: EXTRACT(MONTH FROM sale_date)
- 금액은 숫자 그대로 반환 (포맷팅 불필요)
- 세미콜론(;) 제외
- 주석/설명 없이 SQL만 반환

# 이름 검색 규칙 (중요 - 반드시 따를 것)
- customer_name, product_name 검색 시 오타/유사 입력을 허용하기 위해 아래 패턴 사용
- CTE로 가장 유사한 이름 1개를 먼저 특정한 후, 해당 이름으로 필터링
- 고객명 검색 예시:
  WITH matched_customer AS (
    SELECT customer_name FROM (
      SELECT DISTINCT customer_name,
        CASE WHEN customer_name LIKE '%검색어%' THEN 0 ELSE 1 END AS priority,
        similarity(customer_name, '검색어') AS sim
      FROM sales_clean
      WHERE customer_name LIKE '%검색어%'
         OR similarity(customer_name, '검색어') > 0.3
    ) t
    ORDER BY priority, sim DESC
    LIMIT 1
  )
  SELECT ... FROM sales_clean
  WHERE customer_name = (SELECT customer_name FROM matched_customer)
- 제품명 검색도 동일한 패턴 사용 (product_name으로 대체)
- sales_rep(담당자)만 정확 일치(=) 허용
- = 직접 비교 사용 금지 (customer_name = '...' 금지)

# 성장률/증감률 계산 규칙
- 연도별 매출은 EXTRACT(YEAR FROM sale_date)::int AS year 로 추출 (정수형 필수)
- 전년 대비 증감률: LAG() 윈도우 함수 사용
  예시: ROUND((yearly_sales - LAG(yearly_sales) OVER (ORDER BY year)) * 100.0 / NULLIF(LAG(yearly_sales) OVER (ORDER BY year), 0), 1) AS growth_rate_pct
- 연평균 성장률(CAGR) 계산:
  예시: ROUND((POWER(last_year_sales::numeric / NULLIF(first_year_sales::numeric, 0), 1.0 / NULLIF(year_count - 1, 0)) - 1) * 100, 1) AS cagr_pct
- 성장률 결과는 소수점 1자리까지 ROUND 처리
- 0으로 나누기 방지를 위해 반드시 NULLIF 사용`

// BuildPrompt assembles the SQL generation prompt. A non-empty errorHint is
// appended to the grounding context so the model sees the previous failure.
func BuildPrompt(request Request) string {
	grounding := request.GroundingContext
	if request.ErrorHint != "" {
		grounding += fmt.Sprintf(errorHintFormat, request.ErrorHint)
	}
	if grounding == "" {
		grounding = NoBusinessRules
	}

	var b strings.Builder
	b.WriteString("PostgreSQL SQL 전문가로서 사용자 질문을 SQL로 변환하세요.\n\n")
	b.WriteString("# 테이블 스키마\n")
	b.WriteString(TableSchema)
	b.WriteString("\n\n# 비즈니스 규칙 (RAG 검색 결과)\n")
	b.WriteString(grounding)
	b.WriteString("\n")
	if historyText := history.Format(request.History, history.ModeSQL); historyText != "" {
		b.WriteString("\n")
		b.WriteString(historyText)
	}
	b.WriteString("\n# 질문\n")
	b.WriteString(request.Question)
	b.WriteString("\n\n")
	b.WriteString(generationRules)
	b.WriteString("\n\nSQL:")
	return b.String()
}
