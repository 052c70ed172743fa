package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/memo"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/tracelot/tracelot/service/metrics"
)

// mintAccountSize is the byte size of an SPL token mint account.
const mintAccountSize = 82

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real
// Solana nodes.
type RPCClient interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetTokenSupply(ctx context.Context, mint solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenSupplyResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Client provides the ledger operations behind fractionalization and
// distribution. It wraps the RPC client with domain-specific operations
// and holds the service signing key, which acts as mint authority, fee
// payer, and default sender.
type Client struct {
	rpc      RPCClient
	signer   solana.PrivateKey
	cluster  string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics labels
}

// NewClient creates a new Solana client. The endpoint parameter is used for
// metrics labeling (e.g., "devnet", or the RPC hostname). If m is nil, no
// metrics will be recorded.
func NewClient(rpcClient RPCClient, signer solana.PrivateKey, cluster, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:      rpcClient,
		signer:   signer,
		cluster:  cluster,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

// LoadSigner reads a keypair in the solana-keygen JSON format.
func LoadSigner(path string) (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair from %s: %w", path, err)
	}
	return key, nil
}

// Signer returns the public key of the service signing account.
func (c *Client) Signer() solana.PublicKey {
	return c.signer.PublicKey()
}

// Cluster returns the cluster name used for explorer links.
func (c *Client) Cluster() string {
	return c.cluster
}

func (c *Client) record(method string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}

// MintExists reports whether an account exists at the given mint address.
func (c *Client) MintExists(ctx context.Context, mint solana.PublicKey) (bool, error) {
	start := time.Now()
	out, err := c.rpc.GetAccountInfo(ctx, mint)
	if errors.Is(err, rpc.ErrNotFound) {
		c.record("GetAccountInfo", start, nil)
		return false, nil
	}
	c.record("GetAccountInfo", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to get account info for %s: %w", mint, err)
	}
	return out != nil && out.Value != nil, nil
}

// GetMintInfo fetches the supply and decimals of a token mint.
func (c *Client) GetMintInfo(ctx context.Context, mint solana.PublicKey) (*MintInfo, error) {
	start := time.Now()
	out, err := c.rpc.GetTokenSupply(ctx, mint, rpc.CommitmentConfirmed)
	c.record("GetTokenSupply", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get token supply for %s: %w", mint, err)
	}
	return &MintInfo{
		Address:  mint,
		Supply:   out.Value.Amount,
		Decimals: out.Value.Decimals,
	}, nil
}

// GetTokenBalance returns the raw base-unit balance of owner's associated
// token account for mint, as a decimal string. Returns ErrNoTokenAccount if
// the account has never been created.
func (c *Client) GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (string, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return "", fmt.Errorf("failed to derive associated token address: %w", err)
	}

	start := time.Now()
	out, err := c.rpc.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if errors.Is(err, rpc.ErrNotFound) {
		c.record("GetTokenAccountBalance", start, nil)
		return "", ErrNoTokenAccount
	}
	c.record("GetTokenAccountBalance", start, err)
	if err != nil {
		return "", fmt.Errorf("failed to get token balance for %s: %w", ata, err)
	}
	return out.Value.Amount, nil
}

// CreateFungibleToken mints a new fungible token: it creates the mint
// account, initializes it with the service signer as mint authority, creates
// the signer's associated token account, mints the full share supply into
// it, and records the metadata URI in a memo on the same transaction.
func (c *Client) CreateFungibleToken(ctx context.Context, params CreateFungibleTokenParams) (*CreateFungibleTokenResult, error) {
	mintKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate mint keypair: %w", err)
	}
	mintPub := mintKey.PublicKey()
	authority := c.signer.PublicKey()

	start := time.Now()
	rent, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, mintAccountSize, rpc.CommitmentConfirmed)
	c.record("GetMinimumBalanceForRentExemption", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get rent exemption: %w", err)
	}

	ata, _, err := solana.FindAssociatedTokenAddress(authority, mintPub)
	if err != nil {
		return nil, fmt.Errorf("failed to derive associated token address: %w", err)
	}

	instructions := []solana.Instruction{
		system.NewCreateAccountInstruction(
			rent,
			mintAccountSize,
			token.ProgramID,
			authority,
			mintPub,
		).Build(),
		token.NewInitializeMintInstruction(
			params.Decimals,
			authority,
			authority,
			mintPub,
			solana.SysVarRentPubkey,
		).Build(),
		associatedtokenaccount.NewCreateInstruction(
			authority,
			authority,
			mintPub,
		).Build(),
		token.NewMintToInstruction(
			params.TotalShares,
			mintPub,
			ata,
			authority,
			nil,
		).Build(),
	}
	if params.MetadataURI != "" {
		instructions = append(instructions,
			memo.NewMemoInstruction([]byte(params.MetadataURI), authority).Build())
	}

	sig, err := c.sendInstructions(ctx, instructions, func(key solana.PublicKey) *solana.PrivateKey {
		switch {
		case key.Equals(authority):
			return &c.signer
		case key.Equals(mintPub):
			return &mintKey
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "created fungible token",
		"mint", mintPub.String(),
		"total_shares", params.TotalShares,
		"decimals", params.Decimals,
		"signature", sig.String(),
	)

	return &CreateFungibleTokenResult{
		Mint:         mintPub,
		AuthorityATA: ata,
		Signature:    sig,
		RentLamports: rent,
	}, nil
}

// Transfer moves share tokens from the service signer's associated token
// account to the recipient's. The recipient's associated token account is
// created in the same transaction when it does not exist yet.
func (c *Client) Transfer(ctx context.Context, params TransferParams) (solana.Signature, error) {
	sender := c.signer.PublicKey()

	sourceATA, _, err := solana.FindAssociatedTokenAddress(sender, params.Mint)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to derive source token address: %w", err)
	}
	destATA, _, err := solana.FindAssociatedTokenAddress(params.Recipient, params.Mint)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to derive destination token address: %w", err)
	}

	var instructions []solana.Instruction

	start := time.Now()
	_, err = c.rpc.GetAccountInfo(ctx, destATA)
	if errors.Is(err, rpc.ErrNotFound) {
		c.record("GetAccountInfo", start, nil)
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(
				sender,
				params.Recipient,
				params.Mint,
			).Build())
	} else {
		c.record("GetAccountInfo", start, err)
		if err != nil {
			return solana.Signature{}, fmt.Errorf("failed to check destination token account: %w", err)
		}
	}

	instructions = append(instructions,
		token.NewTransferInstruction(
			params.Amount,
			sourceATA,
			destATA,
			sender,
			nil,
		).Build())
	if params.Note != "" {
		instructions = append(instructions,
			memo.NewMemoInstruction([]byte(params.Note), sender).Build())
	}

	sig, err := c.sendInstructions(ctx, instructions, func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(sender) {
			return &c.signer
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, err
	}

	c.logger.InfoContext(ctx, "transferred share tokens",
		"mint", params.Mint.String(),
		"recipient", params.Recipient.String(),
		"amount", params.Amount,
		"signature", sig.String(),
	)
	return sig, nil
}

// VerifySignatures checks whether persisted signatures are known to the
// chain. A signature is reported Found when the node returns a status for
// it, and Failed when the transaction itself errored.
func (c *Client) VerifySignatures(ctx context.Context, signatures []solana.Signature) ([]SignatureStatus, error) {
	if len(signatures) == 0 {
		return nil, nil
	}

	start := time.Now()
	out, err := c.rpc.GetSignatureStatuses(ctx, true, signatures...)
	c.record("GetSignatureStatuses", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get signature statuses: %w", err)
	}

	statuses := make([]SignatureStatus, len(signatures))
	for i, sig := range signatures {
		statuses[i] = SignatureStatus{Signature: sig}
		if i < len(out.Value) && out.Value[i] != nil {
			statuses[i].Found = true
			statuses[i].Failed = out.Value[i].Err != nil
		}
	}
	return statuses, nil
}

// sendAttempts bounds submission retries. A fresh blockhash is fetched on
// each attempt, so an expired one does not doom the retry too.
const sendAttempts = 2

// sendInstructions assembles, signs, and submits a transaction built from
// the given instructions, paying fees from the service signer. Failed
// submissions are retried once with a fresh blockhash.
func (c *Client) sendInstructions(ctx context.Context, instructions []solana.Instruction, getSigner func(solana.PublicKey) *solana.PrivateKey) (solana.Signature, error) {
	var lastErr error
	for attempt := 0; attempt < sendAttempts; attempt++ {
		if attempt > 0 {
			if c.metrics != nil {
				c.metrics.RecordRPCRetry("SendTransaction", "send_failed")
			}
			c.logger.WarnContext(ctx, "retrying transaction send",
				"attempt", attempt+1,
				"error", lastErr,
			)
		}
		sig, err := c.sendOnce(ctx, instructions, getSigner)
		if err == nil {
			return sig, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return solana.Signature{}, lastErr
}

func (c *Client) sendOnce(ctx context.Context, instructions []solana.Instruction, getSigner func(solana.PublicKey) *solana.PrivateKey) (solana.Signature, error) {
	start := time.Now()
	blockhash, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	c.record("GetLatestBlockhash", start, err)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash.Value.Blockhash,
		solana.TransactionPayer(c.signer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to build transaction: %w", err)
	}

	if _, err := tx.Sign(getSigner); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	start = time.Now()
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	c.record("SendTransaction", start, err)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}
