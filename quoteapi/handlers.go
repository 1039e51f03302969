package quoteapi

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/defistate/simplest-amm-client-go/fixedpoint"
	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
	calculator "github.com/defistate/simplest-amm-client-go/protocols/simplestamm/calculator"
	"github.com/defistate/simplest-amm-client-go/slippage"
	"github.com/gin-gonic/gin"
)

var errMissingParam = errors.New("missing query parameter")

// amountView renders an amount both as whole units and as wei.
type amountView struct {
	Value string `json:"value"`
	Wei   string `json:"wei"`
}

func newAmountView(a fixedpoint.Amount) amountView {
	return amountView{Value: a.String(), Wei: a.WeiString()}
}

func rateView(reserveIn, reserveOut fixedpoint.Amount) any {
	rate, ok := calculator.ExchangeRate(reserveIn, reserveOut)
	if !ok {
		return nil
	}
	return rate.String()
}

func (s *Server) respondError(c *gin.Context, status int, code string, err error) {
	c.JSON(status, gin.H{
		"error":   code,
		"message": err.Error(),
	})
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.respondError(c, http.StatusBadRequest, "invalid_request", err)
}

// readPool reads the pool for the request, writing a 502 on failure.
func (s *Server) readPool(c *gin.Context) (simplestamm.Pool, bool) {
	block, err := parseBlock(c)
	if err != nil {
		s.badRequest(c, err)
		return simplestamm.Pool{}, false
	}
	pool, err := s.source.Pool(c.Request.Context(), block)
	if err != nil {
		s.log.Error("Failed to read pool", "error", err)
		s.respondError(c, http.StatusBadGateway, "upstream_unavailable", err)
		return simplestamm.Pool{}, false
	}
	return pool, true
}

// parseAmount reads a decimal amount such as "1.5" from the query.
func parseAmount(c *gin.Context, name string, required bool) (fixedpoint.Amount, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		if required {
			return fixedpoint.Zero(), fmt.Errorf("%w: %s", errMissingParam, name)
		}
		return fixedpoint.Zero(), nil
	}
	amount, err := fixedpoint.Parse(raw)
	if err != nil {
		return fixedpoint.Zero(), fmt.Errorf("%s: %w", name, err)
	}
	return amount, nil
}

// parseTolerance reads slippage_bps, or slippage as a percentage, falling
// back to the default tolerance.
func parseTolerance(c *gin.Context) (uint16, error) {
	if raw, ok := c.GetQuery("slippage_bps"); ok && raw != "" {
		bps, err := strconv.ParseUint(raw, 10, 16)
		if err != nil || bps > uint64(slippage.MaxToleranceBps) {
			return 0, fmt.Errorf("slippage_bps: must be an integer between 0 and %d", slippage.MaxToleranceBps)
		}
		return uint16(bps), nil
	}
	if raw, ok := c.GetQuery("slippage"); ok && raw != "" {
		return slippage.ParsePercent(raw)
	}
	return slippage.DefaultToleranceBps, nil
}

func parseAsset(c *gin.Context, name string) (simplestamm.Asset, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return 0, fmt.Errorf("%w: %s", errMissingParam, name)
	}
	return simplestamm.ParseAsset(raw)
}

// parseBlock reads an optional block number; nil selects the latest block.
func parseBlock(c *gin.Context) (*big.Int, error) {
	raw := c.Query("block")
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("block: invalid block number %q", raw)
	}
	return new(big.Int).SetUint64(n), nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handlePool(c *gin.Context) {
	pool, ok := s.readPool(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reserveEth":   newAmountView(pool.ReserveETH),
		"reserveToken": newAmountView(pool.ReserveToken),
		"totalLp":      newAmountView(pool.TotalLP),
		"empty":        pool.IsEmpty(),
		"rates": gin.H{
			"ethToToken": rateView(pool.ReserveETH, pool.ReserveToken),
			"tokenToEth": rateView(pool.ReserveToken, pool.ReserveETH),
		},
	})
}

func (s *Server) handleQuoteSwap(c *gin.Context) {
	assetIn, err := parseAsset(c, "asset_in")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	amountIn, err := parseAmount(c, "amount_in", true)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	bps, err := parseTolerance(c)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	pool, ok := s.readPool(c)
	if !ok {
		return
	}

	params := slippage.NewSwapParams(pool, assetIn, amountIn, bps)
	resp := gin.H{
		"assetIn":          assetIn,
		"assetOut":         assetIn.Other(),
		"amountIn":         newAmountView(params.AmountIn),
		"expectedOut":      newAmountView(params.ExpectedOut),
		"minAmountOut":     newAmountView(params.MinAmountOut),
		"toleranceBps":     params.ToleranceBps,
		"tolerancePercent": params.Bound().TolerancePercent(),
	}
	reserveIn, reserveOut := pool.Reserves(assetIn)
	if err := calculator.CheckSwapOutput(amountIn, reserveIn, reserveOut); err != nil {
		resp["reason"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleQuoteSwapInput(c *gin.Context) {
	assetIn, err := parseAsset(c, "asset_in")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	amountOut, err := parseAmount(c, "amount_out", true)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	bps, err := parseTolerance(c)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	pool, ok := s.readPool(c)
	if !ok {
		return
	}

	reserveIn, reserveOut := pool.Reserves(assetIn)
	amountIn := calculator.QuoteSwapInput(amountOut, reserveIn, reserveOut)
	params := slippage.NewSwapParams(pool, assetIn, amountIn, bps)
	resp := gin.H{
		"assetIn":          assetIn,
		"assetOut":         assetIn.Other(),
		"amountOut":        newAmountView(amountOut),
		"amountIn":         newAmountView(amountIn),
		"expectedOut":      newAmountView(params.ExpectedOut),
		"minAmountOut":     newAmountView(params.MinAmountOut),
		"toleranceBps":     params.ToleranceBps,
		"tolerancePercent": params.Bound().TolerancePercent(),
	}
	if err := calculator.CheckSwapInput(amountOut, reserveIn, reserveOut); err != nil {
		resp["reason"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleQuoteAddLiquidity(c *gin.Context) {
	amountETH, err := parseAmount(c, "amount_eth", true)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	amountToken, err := parseAmount(c, "amount_token", false)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	bps, err := parseTolerance(c)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	pool, ok := s.readPool(c)
	if !ok {
		return
	}

	params := slippage.NewAddLiquidityParams(pool, amountETH, amountToken, bps)
	resp := gin.H{
		"amountEth":        newAmountView(params.AmountETH),
		"amountToken":      newAmountView(params.AmountToken),
		"expectedLp":       newAmountView(params.ExpectedLP),
		"minLp":            newAmountView(params.MinLP),
		"toleranceBps":     params.ToleranceBps,
		"tolerancePercent": params.Bound().TolerancePercent(),
	}
	if params.ExpectedLP.IsZero() {
		resp["reason"] = calculator.ErrZeroLiquidity.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleQuoteRemoveLiquidity(c *gin.Context) {
	lp, err := parseAmount(c, "lp", true)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	bps, err := parseTolerance(c)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	pool, ok := s.readPool(c)
	if !ok {
		return
	}

	params := slippage.NewRemoveLiquidityParams(pool, lp, bps)
	ethBound, _ := params.Bounds()
	resp := gin.H{
		"lp":               newAmountView(params.LP),
		"amountEth":        newAmountView(params.Expected.AmountETH),
		"amountToken":      newAmountView(params.Expected.AmountToken),
		"minEth":           newAmountView(params.MinETH),
		"minToken":         newAmountView(params.MinToken),
		"toleranceBps":     params.ToleranceBps,
		"tolerancePercent": ethBound.TolerancePercent(),
	}
	switch {
	case lp.Cmp(pool.TotalLP) > 0:
		resp["reason"] = calculator.ErrInsufficientLPSupply.Error()
	case params.Expected.AmountETH.IsZero() && params.Expected.AmountToken.IsZero():
		resp["reason"] = calculator.ErrZeroLiquidity.Error()
	}
	c.JSON(http.StatusOK, resp)
}
